package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/chain"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

const (
	btcAddr1 = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	btcAddr2 = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
	ltcAddr1 = "LbTjMGN7gELw4KbeyQf6cTCq859hD18guE"
	ethAddr1 = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	ethAddr2 = "0x281055afc982d96fab65b3a49cac8b878184cb16"
)

type testRig struct {
	engine *DealEngine
	pool   *GroupPool
	groups *memGroupStore
	deals  *memDealStore
	audit  *memAuditStore
	users  *memUserStore
	genErr error
}

func newTestRig(t *testing.T, poolSize int) *testRig {
	t.Helper()
	rig := &testRig{
		groups: newMemGroupStore(),
		deals:  newMemDealStore(),
		audit:  &memAuditStore{},
		users:  newMemUserStore(),
	}
	log := zap.NewNop()
	rig.pool = NewGroupPool(rig.groups, rig.audit, poolSize, 12*time.Hour, 12*time.Hour, log)
	if err := rig.pool.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize pool: %v", err)
	}
	var genSeq int
	gen := func(network string) (*chain.Wallet, error) {
		if rig.genErr != nil {
			return nil, rig.genErr
		}
		genSeq++
		addr := fmt.Sprintf("escrow-%s-%d", network, genSeq)
		return &chain.Wallet{Address: addr, PrivateKey: "priv-" + addr}, nil
	}
	rig.engine = NewDealEngine(rig.deals, rig.pool, rig.users, rig.audit, nil, gen, log)
	return rig
}

// openDeal drives a deal to addresses_set with two BTC participants.
func (r *testRig) openDeal(t *testing.T) *models.Deal {
	t.Helper()
	ctx := context.Background()
	deal, _, err := r.engine.CreateDeal(ctx, 100, models.RoleBuyer)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if _, err := r.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, btcAddr1, ""); err != nil {
		t.Fatalf("set buyer address: %v", err)
	}
	deal, err = r.engine.SetParticipantAddress(ctx, deal.ID, 200, models.RoleSeller, btcAddr2, "")
	if err != nil {
		t.Fatalf("set seller address: %v", err)
	}
	return deal
}

func TestCreateDealClaimsGroup(t *testing.T) {
	rig := newTestRig(t, 3)
	ctx := context.Background()

	deal, group, err := rig.engine.CreateDeal(ctx, 42, models.RoleSeller)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if deal.Status != models.DealStatusPending {
		t.Errorf("status = %s, want pending", deal.Status)
	}
	if deal.SellerUserID == nil || *deal.SellerUserID != 42 {
		t.Error("creator not recorded as seller")
	}
	if deal.BuyerUserID != nil {
		t.Error("buyer should be unset at creation")
	}
	if !strings.HasPrefix(deal.EscrowCode, "ESCROW-") || len(deal.EscrowCode) != len("ESCROW-XXX999") {
		t.Errorf("bad escrow code %q", deal.EscrowCode)
	}
	g, _ := rig.groups.GetByID(ctx, group.ID)
	if g.Status != models.GroupStatusOccupied {
		t.Errorf("group status = %s, want occupied", g.Status)
	}
	if g.CurrentDealID == nil || *g.CurrentDealID != deal.ID {
		t.Error("group not bound to deal")
	}
}

func TestCreateDealRejectsBadRole(t *testing.T) {
	rig := newTestRig(t, 1)
	if _, _, err := rig.engine.CreateDeal(context.Background(), 1, "observer"); !IsKind(err, KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCreateDealRejectsBannedUser(t *testing.T) {
	rig := newTestRig(t, 1)
	rig.users.add(7, true)
	if _, _, err := rig.engine.CreateDeal(context.Background(), 7, models.RoleBuyer); !IsKind(err, KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestSetParticipantAddressFixesNetwork(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, err := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}

	deal, err = rig.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, btcAddr1, "")
	if err != nil {
		t.Fatalf("set buyer address: %v", err)
	}
	if deal.Network == nil || *deal.Network != models.NetworkBTC {
		t.Fatalf("network = %v, want BTC", deal.Network)
	}
	if deal.Status != models.DealStatusPending {
		t.Errorf("status = %s, want pending until both addresses set", deal.Status)
	}

	// Second participant on a different chain must be rejected and the
	// deal left untouched.
	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 200, models.RoleSeller, ltcAddr1, ""); !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation error for network mismatch", err)
	}
	got, _ := rig.deals.GetByID(ctx, deal.ID)
	if got.SellerAddress != nil || got.Status != models.DealStatusPending {
		t.Error("failed address registration mutated the deal")
	}

	deal, err = rig.engine.SetParticipantAddress(ctx, deal.ID, 200, models.RoleSeller, btcAddr2, "")
	if err != nil {
		t.Fatalf("set seller address: %v", err)
	}
	if deal.Status != models.DealStatusAddressesSet {
		t.Errorf("status = %s, want addresses_set", deal.Status)
	}
}

func TestSetParticipantAddressRoleConflicts(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, _ := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)

	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, btcAddr1, ""); err != nil {
		t.Fatalf("set buyer address: %v", err)
	}
	// Another user cannot take the buyer role.
	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 999, models.RoleBuyer, btcAddr2, ""); !IsKind(err, KindState) {
		t.Errorf("err = %v, want state error for taken role", err)
	}
	// The buyer cannot overwrite their own address.
	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, btcAddr2, ""); !IsKind(err, KindState) {
		t.Errorf("err = %v, want state error for re-set address", err)
	}
}

func TestSetParticipantAddressBEP20Intent(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, _ := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)

	// A 0x address alone detects as ETH; the declared intent selects the
	// BEP-20 token network instead.
	deal, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, ethAddr1, models.NetworkUSDTBEP20)
	if err != nil {
		t.Fatalf("set buyer address: %v", err)
	}
	if deal.Network == nil || *deal.Network != models.NetworkUSDTBEP20 {
		t.Fatalf("network = %v, want USDT-BEP20", deal.Network)
	}
	// A plain 0x second address without intent now mismatches (ETH vs
	// USDT-BEP20) unless the caller declares the token network too.
	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 200, models.RoleSeller, ethAddr2, ""); !IsKind(err, KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 200, models.RoleSeller, ethAddr2, models.NetworkUSDTBEP20); err != nil {
		t.Errorf("set seller address with intent: %v", err)
	}
}

func TestSetParticipantAddressRejectsGarbage(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, _ := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)

	if _, err := rig.engine.SetParticipantAddress(ctx, deal.ID, 100, models.RoleBuyer, "not-an-address", ""); !IsKind(err, KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestGenerateEscrow(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)

	deal, err := rig.engine.GenerateEscrow(ctx, deal.ID, 100)
	if err != nil {
		t.Fatalf("generate escrow: %v", err)
	}
	if deal.Status != models.DealStatusEscrowGenerated {
		t.Errorf("status = %s, want escrow_generated", deal.Status)
	}
	if deal.EscrowAddress == nil || deal.EscrowPrivateKey == nil {
		t.Fatal("escrow wallet not stored")
	}
	g, _ := rig.groups.GetByID(ctx, deal.GroupID)
	if g.Status != models.GroupStatusEscrowCreated {
		t.Errorf("group status = %s, want escrow_created", g.Status)
	}
}

func TestGenerateEscrowFailureLeavesDealUntouched(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	rig.genErr = errors.New("entropy source unavailable")

	if _, err := rig.engine.GenerateEscrow(ctx, deal.ID, 100); !IsKind(err, KindExternalService) {
		t.Fatalf("err = %v, want external service error", err)
	}
	got, _ := rig.deals.GetByID(ctx, deal.ID)
	if got.Status != models.DealStatusAddressesSet {
		t.Errorf("status = %s, want addresses_set after failed generation", got.Status)
	}
	if got.EscrowAddress != nil {
		t.Error("no escrow address may be stored after failed generation")
	}

	// Recovers once key generation works again.
	rig.genErr = nil
	if _, err := rig.engine.GenerateEscrow(ctx, deal.ID, 100); err != nil {
		t.Fatalf("retry generate escrow: %v", err)
	}
}

func TestGenerateEscrowRequiresAddresses(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, _ := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)

	if _, err := rig.engine.GenerateEscrow(ctx, deal.ID, 100); !IsKind(err, KindState) {
		t.Errorf("err = %v, want state error", err)
	}
}

func TestMarkFundedIdempotent(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)

	amt := chain.NewAmount(big.NewInt(1_000_000), 8) // 0.01 BTC
	deal, err := rig.engine.MarkFunded(ctx, deal.ID, amt, "txhash1")
	if err != nil {
		t.Fatalf("mark funded: %v", err)
	}
	if deal.Status != models.DealStatusFunded {
		t.Fatalf("status = %s, want funded", deal.Status)
	}
	if deal.FundedAmount == nil || *deal.FundedAmount != "0.01" {
		t.Errorf("funded amount = %v, want 0.01", deal.FundedAmount)
	}
	firstFundedAt := *deal.FundedAt

	// Replay with a different amount and hash: no-op, original values
	// preserved.
	again, err := rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(5), 8), "txhash2")
	if err != nil {
		t.Fatalf("repeat mark funded: %v", err)
	}
	if *again.FundedAmount != "0.01" || *again.FundingTxHash != "txhash1" {
		t.Error("repeated markFunded overwrote funding facts")
	}
	if !again.FundedAt.Equal(firstFundedAt) {
		t.Error("repeated markFunded changed funded_at")
	}

	fundedEvents := 0
	for _, a := range rig.audit.actions() {
		if a == "deal_funded" {
			fundedEvents++
		}
	}
	if fundedEvents != 1 {
		t.Errorf("deal_funded audited %d times, want 1", fundedEvents)
	}
}

func TestMarkFundedRequiresEscrow(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)

	amt := chain.NewAmount(big.NewInt(1), 8)
	if _, err := rig.engine.MarkFunded(ctx, deal.ID, amt, ""); !IsKind(err, KindState) {
		t.Errorf("err = %v, want state error", err)
	}
}

func TestFrozenBlocksProgressButNotDispute(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)

	if _, err := rig.engine.SetFrozen(ctx, deal.ID, 1, true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	amt := chain.NewAmount(big.NewInt(100), 8)
	if _, err := rig.engine.MarkFunded(ctx, deal.ID, amt, ""); !IsKind(err, KindFrozen) {
		t.Errorf("mark funded on frozen deal: err = %v, want frozen error", err)
	}
	if _, err := rig.engine.CancelDeal(ctx, deal.ID, 100); !IsKind(err, KindFrozen) {
		t.Errorf("cancel frozen deal: err = %v, want frozen error", err)
	}

	// Dispute remains open even while frozen.
	if _, err := rig.engine.Dispute(ctx, deal.ID, 200, "seller unresponsive"); err != nil {
		t.Errorf("dispute frozen deal: %v", err)
	}

	got, _ := rig.deals.GetByID(ctx, deal.ID)
	if got.Status != models.DealStatusDisputed || !got.Frozen {
		t.Errorf("status/frozen = %s/%v, want disputed/true", got.Status, got.Frozen)
	}
}

func TestUnfreezeResumesLifecycle(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)

	rig.engine.SetFrozen(ctx, deal.ID, 1, true)
	rig.engine.SetFrozen(ctx, deal.ID, 1, false)

	amt := chain.NewAmount(big.NewInt(100), 8)
	if _, err := rig.engine.MarkFunded(ctx, deal.ID, amt, ""); err != nil {
		t.Errorf("mark funded after unfreeze: %v", err)
	}
}

func TestTerminalDealsRejectEverything(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)
	deal, _ = rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(100), 8), "tx")
	deal, err := rig.engine.CompleteDeal(ctx, deal.ID, 100)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := rig.engine.Dispute(ctx, deal.ID, 200, "too late"); !IsKind(err, KindState) {
		t.Errorf("dispute completed deal: err = %v, want state error", err)
	}
	if _, err := rig.engine.CancelDeal(ctx, deal.ID, 100); !IsKind(err, KindState) {
		t.Errorf("cancel completed deal: err = %v, want state error", err)
	}
	if _, err := rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(1), 8), ""); !IsKind(err, KindState) {
		t.Errorf("fund completed deal: err = %v, want state error", err)
	}
	got, _ := rig.deals.GetByID(ctx, deal.ID)
	if got.Status != models.DealStatusCompleted {
		t.Errorf("status regressed to %s", got.Status)
	}
}

func TestCompleteSendsGroupToCooldown(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)
	deal, _ = rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(100), 8), "tx")
	if _, err := rig.engine.CompleteDeal(ctx, deal.ID, 100); err != nil {
		t.Fatalf("complete: %v", err)
	}

	g, _ := rig.groups.GetByID(ctx, deal.GroupID)
	if g.Status != models.GroupStatusCooldown {
		t.Errorf("group status = %s, want cooldown", g.Status)
	}
	if g.CooldownUntil == nil || !g.CooldownUntil.After(time.Now()) {
		t.Error("cooldown deadline not set in the future")
	}
}

func TestDisputeBeforeFundingReleasesGroup(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal, _, _ := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer)

	if _, err := rig.engine.Dispute(ctx, deal.ID, 100, "changed my mind"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	g, _ := rig.groups.GetByID(ctx, deal.GroupID)
	if g.Status != models.GroupStatusCooldown {
		t.Errorf("group status = %s, want cooldown for pre-funding dispute", g.Status)
	}
}

func TestDisputeAfterFundingParksGroup(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)
	deal, _ = rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(100), 8), "tx")

	if _, err := rig.engine.Dispute(ctx, deal.ID, 200, "goods not delivered"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	g, _ := rig.groups.GetByID(ctx, deal.GroupID)
	if g.Status != models.GroupStatusDisputed {
		t.Errorf("group status = %s, want disputed while money is held", g.Status)
	}
}

func TestConcurrentMutationsLinearized(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	deal, _ = rig.engine.GenerateEscrow(ctx, deal.ID, 100)

	amt := chain.NewAmount(big.NewInt(250), 8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rig.engine.MarkFunded(ctx, deal.ID, amt, "tx")
		}()
	}
	wg.Wait()

	fundedEvents := 0
	for _, a := range rig.audit.actions() {
		if a == "deal_funded" {
			fundedEvents++
		}
	}
	if fundedEvents != 1 {
		t.Errorf("deal_funded audited %d times under concurrency, want 1", fundedEvents)
	}
}

func TestCreateDealBindFailureRollsBack(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	rig.groups.failBind = errors.New("connection reset")

	if _, _, err := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer); !IsKind(err, KindExternalService) {
		t.Fatalf("err = %v, want external_service error", err)
	}

	// No stranded occupied group, no orphan pending deal.
	g, _ := rig.groups.GetByNumber(ctx, 1)
	if g.Status != models.GroupStatusCooldown {
		t.Errorf("group status = %s, want cooldown after rollback", g.Status)
	}
	rig.deals.mu.Lock()
	for _, d := range rig.deals.deals {
		if d.Status == models.DealStatusPending {
			t.Errorf("deal %s left pending after rollback", d.EscrowCode)
		}
	}
	rig.deals.mu.Unlock()

	// Group returns to rotation through the normal reclaim cycle.
	rig.groups.failBind = nil
	rig.groups.forceCooldownDone()
	if _, err := rig.pool.ReclaimExpired(ctx); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if _, _, err := rig.engine.CreateDeal(ctx, 100, models.RoleBuyer); err != nil {
		t.Fatalf("create deal after rollback: %v", err)
	}
}

func TestDealLockTableIsPruned(t *testing.T) {
	rig := newTestRig(t, 1)
	ctx := context.Background()
	deal := rig.openDeal(t)
	if _, err := rig.engine.GenerateEscrow(ctx, deal.ID, 100); err != nil {
		t.Fatalf("generate escrow: %v", err)
	}
	if _, err := rig.engine.MarkFunded(ctx, deal.ID, chain.NewAmount(big.NewInt(1000), 8), "tx"); err != nil {
		t.Fatalf("mark funded: %v", err)
	}
	if _, err := rig.engine.CompleteDeal(ctx, deal.ID, 100); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rig.engine.mu.Lock()
	n := len(rig.engine.locks)
	rig.engine.mu.Unlock()
	if n != 0 {
		t.Errorf("%d lock entries retained after the deal finished, want 0", n)
	}
}
