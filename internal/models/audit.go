package models

import (
	"time"

	"github.com/google/uuid"
)

// ActorSystem is the actor id used for entries written by background
// processes rather than a user.
const ActorSystem int64 = 0

type AuditEntry struct {
	ID        uuid.UUID  `json:"id"`
	ActorID   int64      `json:"actor_id"`
	Username  *string    `json:"username,omitempty"`
	Action    string     `json:"action"`
	Target    *string    `json:"target,omitempty"`
	GroupID   *uuid.UUID `json:"group_id,omitempty"`
	DealID    *uuid.UUID `json:"deal_id,omitempty"`
	Details   *string    `json:"details,omitempty"`
	Success   bool       `json:"success"`
	CreatedAt time.Time  `json:"created_at"`
}
