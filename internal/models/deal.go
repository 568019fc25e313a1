package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal statuses
const (
	DealStatusPending         = "pending"
	DealStatusAddressesSet    = "addresses_set"
	DealStatusEscrowGenerated = "escrow_generated"
	DealStatusFunded          = "funded"
	DealStatusCompleted       = "completed"
	DealStatusDisputed        = "disputed"
	DealStatusCancelled       = "cancelled"
)

// Valid deal state transitions: from -> []to.
// Disputed and cancelled are absorbing; they are reachable from every
// non-terminal status but never left.
var ValidDealTransitions = map[string][]string{
	DealStatusPending:         {DealStatusAddressesSet, DealStatusDisputed, DealStatusCancelled},
	DealStatusAddressesSet:    {DealStatusEscrowGenerated, DealStatusDisputed, DealStatusCancelled},
	DealStatusEscrowGenerated: {DealStatusFunded, DealStatusDisputed, DealStatusCancelled},
	DealStatusFunded:          {DealStatusCompleted, DealStatusDisputed, DealStatusCancelled},
	DealStatusCompleted:       {},
	DealStatusDisputed:        {},
	DealStatusCancelled:       {},
}

func IsValidDealTransition(from, to string) bool {
	allowed, ok := ValidDealTransitions[from]
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

// IsTerminalDealStatus reports whether no further transitions exist.
func IsTerminalDealStatus(status string) bool {
	return len(ValidDealTransitions[status]) == 0
}

// dealStatusRank orders the forward progression. Absorbing statuses
// share the highest rank so any path into them counts as forward.
var dealStatusRank = map[string]int{
	DealStatusPending:         0,
	DealStatusAddressesSet:    1,
	DealStatusEscrowGenerated: 2,
	DealStatusFunded:          3,
	DealStatusCompleted:       4,
	DealStatusDisputed:        4,
	DealStatusCancelled:       4,
}

// DealStatusRank returns the monotonic rank of a status, -1 if unknown.
func DealStatusRank(status string) int {
	r, ok := dealStatusRank[status]
	if !ok {
		return -1
	}
	return r
}

// Participant roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

type Deal struct {
	ID               uuid.UUID  `json:"id"`
	EscrowCode       string     `json:"escrow_code"` // ESCROW-ABC123
	GroupID          uuid.UUID  `json:"group_id"`
	BuyerUserID      *int64     `json:"buyer_user_id,omitempty"`
	SellerUserID     *int64     `json:"seller_user_id,omitempty"`
	BuyerAddress     *string    `json:"buyer_address,omitempty"`
	SellerAddress    *string    `json:"seller_address,omitempty"`
	Network          *string    `json:"network,omitempty"`
	EscrowAddress    *string    `json:"escrow_address,omitempty"`
	EscrowPrivateKey *string    `json:"-"`
	FundedAmount     *string    `json:"funded_amount,omitempty"` // whole-coin decimal string
	AmountUSD        *string    `json:"amount_usd,omitempty"`
	FeeAmount        *string    `json:"fee_amount,omitempty"`
	FundingTxHash    *string    `json:"funding_tx_hash,omitempty"`
	Status           string     `json:"status"`
	Frozen           bool       `json:"frozen"`
	DisputeReason    *string    `json:"dispute_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	FundedAt         *time.Time `json:"funded_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ActiveDealStatuses are the statuses of deals still in flight.
var ActiveDealStatuses = []string{
	DealStatusPending,
	DealStatusAddressesSet,
	DealStatusEscrowGenerated,
	DealStatusFunded,
}
