package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/chain"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/events"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// DealStore is the persistence surface for deals.
type DealStore interface {
	Create(ctx context.Context, d *models.Deal) error
	Update(ctx context.Context, d *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	GetByEscrowCode(ctx context.Context, code string) (*models.Deal, error)
	ListAwaitingFunding(ctx context.Context) ([]models.Deal, error)
}

// UserStore is the slice of user persistence the engine needs for ban
// checks and deal counters.
type UserStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	IncrementDeals(ctx context.Context, telegramID int64) error
}

// WalletGenerator produces a fresh escrow wallet for a network.
// Failures must propagate; there is never a placeholder address.
type WalletGenerator func(network string) (*chain.Wallet, error)

// DealEngine drives the deal lifecycle. Every mutation for a given deal
// runs under that deal's lock, so concurrent operations on one deal are
// linearized and status never moves backward.
type DealEngine struct {
	deals  DealStore
	groups *GroupPool
	users  UserStore
	audit  AuditStore
	pub    events.Publisher
	genkey WalletGenerator
	log    *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*dealLock
}

// dealLock is a refcounted mutex: the table entry is dropped once the
// last holder or waiter releases it, so the map never outgrows the set
// of deals with in-flight operations.
type dealLock struct {
	mu   sync.Mutex
	refs int
}

func NewDealEngine(deals DealStore, groups *GroupPool, users UserStore, audit AuditStore, pub events.Publisher, genkey WalletGenerator, log *zap.Logger) *DealEngine {
	if genkey == nil {
		genkey = chain.Generate
	}
	return &DealEngine{
		deals:  deals,
		groups: groups,
		users:  users,
		audit:  audit,
		pub:    pub,
		genkey: genkey,
		log:    log,
		locks:  map[uuid.UUID]*dealLock{},
	}
}

func (e *DealEngine) lockDeal(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &dealLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

const escrowCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newEscrowCode builds a short human-pasteable code: ESCROW-XXX999.
func newEscrowCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, 6)
	for i := 0; i < 3; i++ {
		code[i] = escrowCodeAlphabet[int(buf[i])%len(escrowCodeAlphabet)]
	}
	for i := 3; i < 6; i++ {
		code[i] = byte('0' + int(buf[i])%10)
	}
	return "ESCROW-" + string(code), nil
}

func (e *DealEngine) checkUser(ctx context.Context, userID int64) error {
	if e.users == nil {
		return nil
	}
	u, err := e.users.GetByTelegramID(ctx, userID)
	if err != nil {
		return wrapError(KindExternalService, err, "load user")
	}
	if u != nil && u.IsBanned {
		return newError(KindValidation, "user %d is banned", userID)
	}
	return nil
}

// CreateDeal claims a group from the pool and opens a pending deal in
// it. The creator declares their own role up front; the counterparty
// takes the other role when they register an address.
func (e *DealEngine) CreateDeal(ctx context.Context, creatorID int64, role string) (*models.Deal, *models.Group, error) {
	if role != models.RoleBuyer && role != models.RoleSeller {
		return nil, nil, newError(KindValidation, "role must be %q or %q", models.RoleBuyer, models.RoleSeller)
	}
	if err := e.checkUser(ctx, creatorID); err != nil {
		return nil, nil, err
	}

	group, err := e.groups.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	code, err := newEscrowCode()
	if err != nil {
		return nil, nil, wrapError(KindExternalService, err, "generate escrow code")
	}

	deal := &models.Deal{
		EscrowCode: code,
		GroupID:    group.ID,
		Status:     models.DealStatusPending,
	}
	if role == models.RoleBuyer {
		deal.BuyerUserID = &creatorID
	} else {
		deal.SellerUserID = &creatorID
	}

	if err := e.deals.Create(ctx, deal); err != nil {
		// Put the group back rather than leaking it as occupied.
		if relErr := e.groups.Release(ctx, group.ID); relErr != nil {
			e.log.Warn("release group after failed deal create", zap.Error(relErr))
		}
		return nil, nil, wrapError(KindExternalService, err, "create deal")
	}
	if err := e.groups.BindDeal(ctx, group.ID, deal.ID, creatorID); err != nil {
		// Roll back both sides: an occupied group with no bound deal
		// would sit stranded until the 12h expiry.
		deal.Status = models.DealStatusCancelled
		if updErr := e.deals.Update(ctx, deal); updErr != nil {
			e.log.Warn("void deal after failed group bind", zap.Error(updErr))
		}
		if relErr := e.groups.Release(ctx, group.ID); relErr != nil {
			e.log.Warn("release group after failed group bind", zap.Error(relErr))
		}
		return nil, nil, err
	}
	group.CurrentDealID = &deal.ID
	group.CreatorUserID = &creatorID

	e.writeAudit(ctx, creatorID, "deal_created", deal, role)
	e.publish(ctx, events.DealCreated, deal, map[string]any{"role": role, "group_number": group.Number})
	e.log.Info("deal created",
		zap.String("escrow_code", deal.EscrowCode),
		zap.Int("group_number", group.Number),
		zap.Int64("creator_id", creatorID))
	return deal, group, nil
}

// SetParticipantAddress registers a payout address for one side of the
// deal. The first registered address fixes the deal's network; the
// second must match it. For 0x addresses the caller may pass
// intendedNetwork to select USDT-BEP20 over native ETH.
func (e *DealEngine) SetParticipantAddress(ctx context.Context, dealID uuid.UUID, userID int64, role, address, intendedNetwork string) (*models.Deal, error) {
	if role != models.RoleBuyer && role != models.RoleSeller {
		return nil, newError(KindValidation, "role must be %q or %q", models.RoleBuyer, models.RoleSeller)
	}
	if err := e.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Frozen {
		return nil, newError(KindFrozen, "deal %s is frozen", deal.EscrowCode)
	}
	if deal.Status != models.DealStatusPending {
		return nil, newError(KindState, "addresses can only be set while the deal is pending")
	}

	detected, ok := chain.DetectNetwork(address)
	if !ok {
		return nil, newError(KindValidation, "address does not match any supported network")
	}
	network := detected
	if intendedNetwork != "" {
		if !models.IsValidNetwork(intendedNetwork) {
			return nil, newError(KindValidation, "unsupported network %q", intendedNetwork)
		}
		if _, ok := chain.ValidateAddress(address, intendedNetwork); !ok {
			return nil, newError(KindValidation, "address is not valid for network %s", intendedNetwork)
		}
		network = intendedNetwork
	}
	if deal.Network != nil && *deal.Network != network {
		return nil, newError(KindValidation, "deal is on %s, got a %s address", *deal.Network, network)
	}

	// Claim the role, or verify it already belongs to this user.
	switch role {
	case models.RoleBuyer:
		if deal.BuyerUserID != nil && *deal.BuyerUserID != userID {
			return nil, newError(KindState, "buyer role already taken")
		}
		if deal.BuyerAddress != nil {
			return nil, newError(KindState, "buyer address already set")
		}
		deal.BuyerUserID = &userID
		deal.BuyerAddress = &address
	case models.RoleSeller:
		if deal.SellerUserID != nil && *deal.SellerUserID != userID {
			return nil, newError(KindState, "seller role already taken")
		}
		if deal.SellerAddress != nil {
			return nil, newError(KindState, "seller address already set")
		}
		deal.SellerUserID = &userID
		deal.SellerAddress = &address
	}
	if deal.Network == nil {
		deal.Network = &network
	}
	if deal.BuyerAddress != nil && deal.SellerAddress != nil {
		deal.Status = models.DealStatusAddressesSet
	}

	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	if err := e.groups.AddParticipant(ctx, deal.GroupID, userID); err != nil {
		e.log.Warn("record group participant", zap.Error(err))
	}

	e.writeAudit(ctx, userID, "address_registered", deal, fmt.Sprintf("%s %s", role, network))
	e.publish(ctx, events.AddressRegistered, deal, map[string]any{"role": role, "network": network})
	return deal, nil
}

// GenerateEscrow creates the per-deal escrow wallet. Key generation
// failure leaves the deal untouched in addresses_set; there is no
// fallback address of any kind.
func (e *DealEngine) GenerateEscrow(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Frozen {
		return nil, newError(KindFrozen, "deal %s is frozen", deal.EscrowCode)
	}
	if deal.Status != models.DealStatusAddressesSet {
		return nil, newError(KindState, "escrow requires both addresses to be set first")
	}
	if deal.Network == nil {
		return nil, newError(KindState, "deal has no network")
	}

	wallet, err := e.genkey(*deal.Network)
	if err != nil {
		e.writeAuditResult(ctx, actorID, "escrow_generate", deal, err.Error(), false)
		return nil, wrapError(KindExternalService, err, "generate escrow wallet")
	}

	deal.EscrowAddress = &wallet.Address
	deal.EscrowPrivateKey = &wallet.PrivateKey
	deal.Status = models.DealStatusEscrowGenerated
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	if err := e.groups.Advance(ctx, deal.GroupID, models.GroupStatusOccupied, models.GroupStatusEscrowCreated); err != nil {
		e.log.Warn("advance group to escrow_created", zap.Error(err))
	}

	e.writeAudit(ctx, actorID, "escrow_generated", deal, *deal.Network)
	e.publish(ctx, events.EscrowGenerated, deal, map[string]any{
		"network": *deal.Network,
		"address": wallet.Address,
	})
	e.log.Info("escrow wallet generated",
		zap.String("escrow_code", deal.EscrowCode),
		zap.String("network", *deal.Network),
		zap.String("address", wallet.Address))
	return deal, nil
}

// MarkFunded records that the escrow address received funds. Idempotent:
// calling it again for an already-funded deal returns the deal unchanged.
func (e *DealEngine) MarkFunded(ctx context.Context, dealID uuid.UUID, amount chain.Amount, txHash string) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status == models.DealStatusFunded {
		return deal, nil
	}
	if deal.Frozen {
		return nil, newError(KindFrozen, "deal %s is frozen", deal.EscrowCode)
	}
	if deal.Status != models.DealStatusEscrowGenerated {
		return nil, newError(KindState, "deal is %s, cannot mark funded", deal.Status)
	}
	if amount.Sign() <= 0 {
		return nil, newError(KindValidation, "funded amount must be positive")
	}

	now := time.Now().UTC()
	amt := amount.String()
	deal.FundedAmount = &amt
	deal.FundedAt = &now
	if txHash != "" {
		deal.FundingTxHash = &txHash
	}
	deal.Status = models.DealStatusFunded
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	if err := e.groups.Advance(ctx, deal.GroupID, models.GroupStatusEscrowCreated, models.GroupStatusFunded); err != nil {
		e.log.Warn("advance group to funded", zap.Error(err))
	}

	e.writeAudit(ctx, models.ActorSystem, "deal_funded", deal, amt)
	e.publish(ctx, events.DealFunded, deal, map[string]any{
		"amount":  amt,
		"tx_hash": txHash,
	})
	e.log.Info("deal funded",
		zap.String("escrow_code", deal.EscrowCode),
		zap.String("amount", amt),
		zap.String("tx_hash", txHash))
	return deal, nil
}

// CompleteDeal settles a funded deal and sends its group to cooldown.
func (e *DealEngine) CompleteDeal(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Frozen {
		return nil, newError(KindFrozen, "deal %s is frozen", deal.EscrowCode)
	}
	if deal.Status != models.DealStatusFunded {
		return nil, newError(KindState, "only funded deals can be completed")
	}

	now := time.Now().UTC()
	deal.CompletedAt = &now
	deal.Status = models.DealStatusCompleted
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	if err := e.groups.Advance(ctx, deal.GroupID, models.GroupStatusFunded, models.GroupStatusCooldown); err != nil {
		e.log.Warn("advance group to cooldown", zap.Error(err))
	}
	e.bumpDealCounters(ctx, deal)

	e.writeAudit(ctx, actorID, "deal_completed", deal, "")
	e.publish(ctx, events.DealCompleted, deal, nil)
	return deal, nil
}

// Dispute moves a deal into the absorbing disputed status from any
// non-terminal status. A frozen deal can still be disputed.
func (e *DealEngine) Dispute(ctx context.Context, dealID uuid.UUID, actorID int64, reason string) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalDealStatus(deal.Status) {
		return nil, newError(KindState, "deal is already %s", deal.Status)
	}

	wasFunded := deal.Status == models.DealStatusFunded
	deal.Status = models.DealStatusDisputed
	if reason != "" {
		deal.DisputeReason = &reason
	}
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	// A funded group holds real money: park it in disputed until an
	// admin resolves it. Anything earlier just goes back to cooldown.
	if wasFunded {
		if err := e.groups.Advance(ctx, deal.GroupID, models.GroupStatusFunded, models.GroupStatusDisputed); err != nil {
			e.log.Warn("advance group to disputed", zap.Error(err))
		}
	} else {
		if err := e.groups.Release(ctx, deal.GroupID); err != nil {
			e.log.Warn("release group after dispute", zap.Error(err))
		}
	}

	e.writeAudit(ctx, actorID, "deal_disputed", deal, reason)
	e.publish(ctx, events.DealDisputed, deal, map[string]any{"reason": reason})
	return deal, nil
}

// CancelDeal aborts a deal before completion and returns the group to
// cooldown. Like Dispute, cancellation is absorbing.
func (e *DealEngine) CancelDeal(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Frozen {
		return nil, newError(KindFrozen, "deal %s is frozen", deal.EscrowCode)
	}
	if models.IsTerminalDealStatus(deal.Status) {
		return nil, newError(KindState, "deal is already %s", deal.Status)
	}

	deal.Status = models.DealStatusCancelled
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}
	if err := e.groups.Release(ctx, deal.GroupID); err != nil {
		e.log.Warn("release group after cancel", zap.Error(err))
	}

	e.writeAudit(ctx, actorID, "deal_cancelled", deal, "")
	e.publish(ctx, events.DealCancelled, deal, nil)
	return deal, nil
}

// SetFrozen toggles the moderation freeze. Frozen is orthogonal to
// status: it blocks forward progress without moving the deal.
func (e *DealEngine) SetFrozen(ctx context.Context, dealID uuid.UUID, actorID int64, frozen bool) (*models.Deal, error) {
	unlock := e.lockDeal(dealID)
	defer unlock()

	deal, err := e.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Frozen == frozen {
		return deal, nil
	}
	deal.Frozen = frozen
	if err := e.deals.Update(ctx, deal); err != nil {
		return nil, wrapError(KindExternalService, err, "update deal")
	}

	action, eventType := "deal_frozen", events.DealFrozen
	if !frozen {
		action, eventType = "deal_unfrozen", events.DealUnfrozen
	}
	e.writeAudit(ctx, actorID, action, deal, "")
	e.publish(ctx, eventType, deal, nil)
	return deal, nil
}

func (e *DealEngine) GetDeal(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	return e.loadDeal(ctx, dealID)
}

func (e *DealEngine) GetDealByCode(ctx context.Context, code string) (*models.Deal, error) {
	deal, err := e.deals.GetByEscrowCode(ctx, code)
	if err != nil {
		return nil, wrapError(KindExternalService, err, "load deal")
	}
	if deal == nil {
		return nil, newError(KindNotFound, "deal %s not found", code)
	}
	return deal, nil
}

func (e *DealEngine) loadDeal(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	deal, err := e.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, wrapError(KindExternalService, err, "load deal")
	}
	if deal == nil {
		return nil, newError(KindNotFound, "deal not found")
	}
	return deal, nil
}

func (e *DealEngine) bumpDealCounters(ctx context.Context, deal *models.Deal) {
	if e.users == nil {
		return
	}
	for _, id := range []*int64{deal.BuyerUserID, deal.SellerUserID} {
		if id == nil {
			continue
		}
		if err := e.users.IncrementDeals(ctx, *id); err != nil {
			e.log.Warn("increment deal counter", zap.Int64("user_id", *id), zap.Error(err))
		}
	}
}

func (e *DealEngine) writeAudit(ctx context.Context, actorID int64, action string, deal *models.Deal, details string) {
	e.writeAuditResult(ctx, actorID, action, deal, details, true)
}

func (e *DealEngine) writeAuditResult(ctx context.Context, actorID int64, action string, deal *models.Deal, details string, success bool) {
	target := "deal"
	entry := models.AuditEntry{
		ActorID: actorID,
		Action:  action,
		Target:  &target,
		GroupID: &deal.GroupID,
		DealID:  &deal.ID,
		Success: success,
	}
	if details != "" {
		entry.Details = &details
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (e *DealEngine) publish(ctx context.Context, eventType string, deal *models.Deal, payload map[string]any) {
	if e.pub == nil {
		return
	}
	event := events.Event{
		Type:       eventType,
		DealID:     deal.ID,
		EscrowCode: deal.EscrowCode,
		GroupID:    &deal.GroupID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.pub.Publish(ctx, events.StreamDeals, event); err != nil {
		e.log.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}
