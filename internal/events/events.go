package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DealCreated       = "deal.created"
	AddressRegistered = "deal.address_registered"
	EscrowGenerated   = "deal.escrow_generated"
	DealFunded        = "deal.funded"
	DealCompleted     = "deal.completed"
	DealDisputed      = "deal.disputed"
	DealCancelled     = "deal.cancelled"
	DealFrozen        = "deal.frozen"
	DealUnfrozen      = "deal.unfrozen"
	GroupReclaimed    = "group.reclaimed"
)

// Event is the lifecycle notification fanned out over pubsub to the
// websocket hub and the notifier bridge.
type Event struct {
	Type       string         `json:"type"`
	DealID     uuid.UUID      `json:"deal_id,omitempty"`
	EscrowCode string         `json:"escrow_code,omitempty"`
	GroupID    *uuid.UUID     `json:"group_id,omitempty"`
	ActorID    int64          `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// StreamDeals is the pubsub channel carrying all lifecycle events.
const StreamDeals = "escrow:deals"

// Publisher fans events out to interested consumers. Delivery is
// best-effort: lifecycle mutations never fail because delivery did.
type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// Subscriber receives the event stream, used by the websocket hub and
// the notifier bridge.
type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
