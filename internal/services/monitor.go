package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/chain"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// FundingSink is the slice of the engine the monitor drives. MarkFunded
// must be idempotent; the monitor may report the same funding twice.
type FundingSink interface {
	MarkFunded(ctx context.Context, dealID uuid.UUID, amount chain.Amount, txHash string) (*models.Deal, error)
}

type watchEntry struct {
	dealID      uuid.UUID
	network     string
	address     string
	lastBalance chain.Amount
	failures    int
	lastChecked time.Time
}

// FundingMonitor polls escrow addresses of deals awaiting funding and
// reports balance increases to the engine. The working set rebuilds
// from the store on every sweep, so monitor restarts lose nothing, and
// a funded or frozen deal drops out automatically.
type FundingMonitor struct {
	deals      DealStore
	reader     chain.Reader
	sink       FundingSink
	rdb        *redis.Client
	poll       time.Duration
	txLookback int
	log        *zap.Logger

	mu      sync.Mutex
	watched map[string]*watchEntry // keyed network:address
}

func NewFundingMonitor(deals DealStore, reader chain.Reader, sink FundingSink, rdb *redis.Client, poll time.Duration, txLookback int, log *zap.Logger) *FundingMonitor {
	return &FundingMonitor{
		deals:      deals,
		reader:     reader,
		sink:       sink,
		rdb:        rdb,
		poll:       poll,
		txLookback: txLookback,
		log:        log,
		watched:    map[string]*watchEntry{},
	}
}

func watchKey(network, address string) string {
	return network + ":" + address
}

// Run polls until the context is cancelled. Each sweep is recovered
// independently, so a panic in one sweep never kills the loop.
func (m *FundingMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	m.log.Info("funding monitor started", zap.Duration("poll_interval", m.poll))
	m.safeSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("funding monitor stopped")
			return
		case <-ticker.C:
			m.safeSweep(ctx)
		}
	}
}

func (m *FundingMonitor) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("sweep panic recovered", zap.Any("panic", r))
		}
	}()
	if err := m.Sweep(ctx); err != nil {
		m.log.Error("sweep failed", zap.Error(err))
	}
}

// Sweep runs one full pass: refresh the working set from the store,
// then check every watched address. Per-address failures are isolated;
// one flaky explorer never blocks the rest of the set.
func (m *FundingMonitor) Sweep(ctx context.Context) error {
	if err := m.refresh(ctx); err != nil {
		return err
	}

	for _, key := range m.watchedKeys() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.checkAddress(ctx, key)
	}
	return nil
}

// refresh reconciles the in-memory working set against deals that are
// currently awaiting funding.
func (m *FundingMonitor) refresh(ctx context.Context) error {
	deals, err := m.deals.ListAwaitingFunding(ctx)
	if err != nil {
		return fmt.Errorf("list deals awaiting funding: %w", err)
	}

	active := make(map[string]bool, len(deals))
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range deals {
		d := &deals[i]
		if d.Network == nil || d.EscrowAddress == nil {
			continue
		}
		key := watchKey(*d.Network, *d.EscrowAddress)
		active[key] = true
		if _, ok := m.watched[key]; !ok {
			m.watched[key] = &watchEntry{
				dealID:      d.ID,
				network:     *d.Network,
				address:     *d.EscrowAddress,
				lastBalance: chain.ZeroAmount(*d.Network),
			}
			m.log.Info("watching escrow address",
				zap.String("escrow_code", d.EscrowCode),
				zap.String("network", *d.Network),
				zap.String("address", *d.EscrowAddress))
		}
	}
	for key := range m.watched {
		if !active[key] {
			delete(m.watched, key)
		}
	}
	return nil
}

func (m *FundingMonitor) watchedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.watched))
	for key := range m.watched {
		out = append(out, key)
	}
	return out
}

// checkAddress observes one watched address. Entry fields are only
// touched under m.mu: the webhook recheck path runs on fiber goroutines
// concurrently with the sweep goroutine.
func (m *FundingMonitor) checkAddress(ctx context.Context, key string) {
	m.mu.Lock()
	entry, ok := m.watched[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	network, address := entry.network, entry.address
	last := entry.lastBalance
	m.mu.Unlock()

	balance, err := m.reader.GetBalance(ctx, network, address)

	m.mu.Lock()
	entry, ok = m.watched[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err != nil {
		entry.failures++
		failures := entry.failures
		m.mu.Unlock()
		m.log.Warn("balance check failed",
			zap.String("network", network),
			zap.String("address", address),
			zap.Int("failures", failures),
			zap.Error(err))
		return
	}
	entry.failures = 0
	entry.lastChecked = time.Now().UTC()
	m.mu.Unlock()

	var txs []chain.Transaction
	if balance.Cmp(last) > 0 {
		// Best effort: a tx hash improves the audit trail but its
		// absence never blocks detection.
		txs, err = m.reader.GetRecentTransactions(ctx, network, address, m.txLookback)
		if err != nil {
			m.log.Debug("recent transactions lookup failed",
				zap.String("address", address), zap.Error(err))
		}
	}
	m.RecordObservedBalance(ctx, network, address, balance, txs)
}

// RecordObservedBalance is the single detection entry point: both the
// polling sweep and the webhook recheck path deliver observations here.
// Funding fires the first time the balance strictly exceeds the last
// recorded one.
func (m *FundingMonitor) RecordObservedBalance(ctx context.Context, network, address string, balance chain.Amount, txs []chain.Transaction) {
	key := watchKey(network, address)
	m.mu.Lock()
	entry, ok := m.watched[key]
	if !ok || balance.Cmp(entry.lastBalance) <= 0 {
		m.mu.Unlock()
		return
	}
	received := balance.Sub(entry.lastBalance)
	dealID := entry.dealID
	m.mu.Unlock()

	txHash := firstIncomingHash(txs)

	if m.alreadyReported(ctx, key, balance) {
		m.mu.Lock()
		if entry, ok := m.watched[key]; ok {
			entry.lastBalance = balance
		}
		m.mu.Unlock()
		return
	}

	if _, err := m.sink.MarkFunded(ctx, dealID, received, txHash); err != nil {
		// Frozen or mid-transition deals stay watched; the next sweep
		// retries against unchanged lastBalance.
		m.log.Warn("deposit detected but not recorded",
			zap.String("network", network),
			zap.String("address", address),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	delete(m.watched, key)
	m.mu.Unlock()
	m.markReported(ctx, key, balance)
	m.log.Info("funding detected",
		zap.String("network", network),
		zap.String("address", address),
		zap.String("amount", received.String()),
		zap.String("tx_hash", txHash))
}

// RecheckAddress forces an immediate balance observation outside the
// poll cycle, used by the explorer webhook listener.
func (m *FundingMonitor) RecheckAddress(ctx context.Context, network, address string) {
	m.checkAddress(ctx, watchKey(network, address))
}

// WatchedCount reports the working-set size, for the health endpoint.
func (m *FundingMonitor) WatchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watched)
}

func firstIncomingHash(txs []chain.Transaction) string {
	for _, tx := range txs {
		if tx.Incoming && tx.Hash != "" {
			return tx.Hash
		}
	}
	return ""
}

// alreadyReported / markReported keep a short-lived idempotency mark in
// redis so two monitor replicas do not both call MarkFunded for the
// same observation. MarkFunded is idempotent anyway; this just cuts
// duplicate noise.
func (m *FundingMonitor) alreadyReported(ctx context.Context, key string, balance chain.Amount) bool {
	if m.rdb == nil {
		return false
	}
	mark := "funding:reported:" + key + ":" + balance.UnitsString()
	n, err := m.rdb.Exists(ctx, mark).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (m *FundingMonitor) markReported(ctx context.Context, key string, balance chain.Amount) {
	if m.rdb == nil {
		return
	}
	mark := "funding:reported:" + key + ":" + balance.UnitsString()
	if err := m.rdb.Set(ctx, mark, 1, 24*time.Hour).Err(); err != nil {
		m.log.Debug("idempotency mark write failed", zap.Error(err))
	}
}
