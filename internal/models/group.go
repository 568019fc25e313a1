package models

import (
	"time"

	"github.com/google/uuid"
)

// Group statuses
const (
	GroupStatusAvailable     = "available"
	GroupStatusOccupied      = "occupied"
	GroupStatusEscrowCreated = "escrow_created"
	GroupStatusFunded        = "funded"
	GroupStatusDisputed      = "disputed"
	GroupStatusCooldown      = "cooldown"
)

// Valid group state transitions: from -> []to.
// Groups cycle indefinitely; cooldown is the only way back to available.
var ValidGroupTransitions = map[string][]string{
	GroupStatusAvailable:     {GroupStatusOccupied},
	GroupStatusOccupied:      {GroupStatusEscrowCreated, GroupStatusCooldown},
	GroupStatusEscrowCreated: {GroupStatusFunded, GroupStatusCooldown},
	GroupStatusFunded:        {GroupStatusDisputed, GroupStatusCooldown},
	GroupStatusDisputed:      {GroupStatusCooldown},
	GroupStatusCooldown:      {GroupStatusAvailable},
}

func IsValidGroupTransition(from, to string) bool {
	allowed, ok := ValidGroupTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// GroupOccupiedStatuses are the statuses in which a group hosts a deal
// and current_deal_id must be set.
var GroupOccupiedStatuses = []string{
	GroupStatusOccupied,
	GroupStatusEscrowCreated,
	GroupStatusFunded,
	GroupStatusDisputed,
}

type Group struct {
	ID             uuid.UUID  `json:"id"`
	Number         int        `json:"number"`
	TelegramChatID *int64     `json:"telegram_chat_id,omitempty"`
	Status         string     `json:"status"`
	CurrentDealID  *uuid.UUID `json:"current_deal_id,omitempty"`
	CreatorUserID  *int64     `json:"creator_user_id,omitempty"`
	ParticipantIDs []int64    `json:"participant_ids,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	OccupiedAt     *time.Time `json:"occupied_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CooldownUntil  *time.Time `json:"cooldown_until,omitempty"`
}
