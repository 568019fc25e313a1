package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/chain"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// In-memory stores backing the service tests. They hold the same
// atomicity guarantees the SQL layer provides: claim and transition are
// single critical sections.

type memGroupStore struct {
	mu       sync.Mutex
	groups   map[uuid.UUID]*models.Group
	failBind error
}

func newMemGroupStore() *memGroupStore {
	return &memGroupStore{groups: map[uuid.UUID]*models.Group{}}
}

func (s *memGroupStore) InitializePool(_ context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := 1; n <= count; n++ {
		exists := false
		for _, g := range s.groups {
			if g.Number == n {
				exists = true
				break
			}
		}
		if !exists {
			id := uuid.New()
			s.groups[id] = &models.Group{ID: id, Number: n, Status: models.GroupStatusAvailable, CreatedAt: time.Now()}
		}
	}
	return nil
}

// ClaimAvailable hands out the lowest-numbered free group, matching the
// ORDER BY number of the SQL claim.
func (s *memGroupStore) ClaimAvailable(_ context.Context, occupiedAt, expiresAt time.Time) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pick *models.Group
	for _, g := range s.groups {
		if g.Status == models.GroupStatusAvailable && (pick == nil || g.Number < pick.Number) {
			pick = g
		}
	}
	if pick == nil {
		return nil, nil
	}
	pick.Status = models.GroupStatusOccupied
	pick.OccupiedAt = &occupiedAt
	pick.ExpiresAt = &expiresAt
	cp := *pick
	return &cp, nil
}

func (s *memGroupStore) SetCurrentDeal(_ context.Context, groupID, dealID uuid.UUID, creatorUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBind != nil {
		return s.failBind
	}
	if g, ok := s.groups[groupID]; ok {
		g.CurrentDealID = &dealID
		g.CreatorUserID = &creatorUserID
	}
	return nil
}

func (s *memGroupStore) AddParticipant(_ context.Context, groupID uuid.UUID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	for _, id := range g.ParticipantIDs {
		if id == userID {
			return nil
		}
	}
	g.ParticipantIDs = append(g.ParticipantIDs, userID)
	return nil
}

func (s *memGroupStore) Transition(_ context.Context, groupID uuid.UUID, from, to string, cooldownUntil *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok || g.Status != from || !models.IsValidGroupTransition(from, to) {
		return false, nil
	}
	g.Status = to
	g.CooldownUntil = cooldownUntil
	return true, nil
}

func (s *memGroupStore) Reset(_ context.Context, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[groupID]; ok {
		g.Status = models.GroupStatusAvailable
		g.CurrentDealID = nil
		g.CreatorUserID = nil
		g.ParticipantIDs = nil
		g.OccupiedAt = nil
		g.ExpiresAt = nil
		g.CooldownUntil = nil
	}
	return nil
}

func (s *memGroupStore) GetByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (s *memGroupStore) GetByNumber(_ context.Context, number int) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Number == number {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memGroupStore) List(_ context.Context) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (s *memGroupStore) ListExpiredOccupied(_ context.Context, now time.Time) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Group
	for _, g := range s.groups {
		occupied := g.Status == models.GroupStatusOccupied || g.Status == models.GroupStatusEscrowCreated
		if occupied && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *memGroupStore) ListCooldownFinished(_ context.Context, now time.Time) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Group
	for _, g := range s.groups {
		if g.Status == models.GroupStatusCooldown && g.CooldownUntil != nil && !g.CooldownUntil.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

// forceCooldownDone rewinds cooldown deadlines so reclaim tests do not
// have to sleep.
func (s *memGroupStore) forceCooldownDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().Add(-time.Minute)
	for _, g := range s.groups {
		if g.Status == models.GroupStatusCooldown {
			g.CooldownUntil = &past
		}
	}
}

func (s *memGroupStore) forceExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().Add(-time.Minute)
	for _, g := range s.groups {
		if g.ExpiresAt != nil {
			g.ExpiresAt = &past
		}
	}
}

type memDealStore struct {
	mu    sync.Mutex
	deals map[uuid.UUID]*models.Deal
}

func newMemDealStore() *memDealStore {
	return &memDealStore{deals: map[uuid.UUID]*models.Deal{}}
}

func (s *memDealStore) Create(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	s.deals[d.ID] = &cp
	return nil
}

func (s *memDealStore) Update(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.UpdatedAt = time.Now()
	cp := *d
	s.deals[d.ID] = &cp
	return nil
}

func (s *memDealStore) GetByID(_ context.Context, id uuid.UUID) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deals[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (s *memDealStore) GetByEscrowCode(_ context.Context, code string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deals {
		if d.EscrowCode == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memDealStore) ListAwaitingFunding(_ context.Context) ([]models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Deal
	for _, d := range s.deals {
		if d.Status == models.DealStatusEscrowGenerated && d.EscrowAddress != nil && !d.Frozen {
			out = append(out, *d)
		}
	}
	return out, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (s *memAuditStore) Log(_ context.Context, e models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

type memUserStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[int64]*models.User{}}
}

func (s *memUserStore) add(telegramID int64, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[telegramID] = &models.User{TelegramID: telegramID, IsBanned: banned}
}

func (s *memUserStore) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memUserStore) IncrementDeals(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		u.DealsCount++
	}
	return nil
}

// fakeReader replays scripted balances per network:address key.
type fakeReader struct {
	mu    sync.Mutex
	bals  map[string]chain.Amount
	txs   map[string][]chain.Transaction
	fail  map[string]error
	calls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		bals: map[string]chain.Amount{},
		txs:  map[string][]chain.Transaction{},
		fail: map[string]error{},
	}
}

func (r *fakeReader) setBalance(network, address string, a chain.Amount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bals[network+":"+address] = a
}

func (r *fakeReader) GetBalance(_ context.Context, network, address string) (chain.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	key := network + ":" + address
	if err := r.fail[key]; err != nil {
		return chain.Amount{}, err
	}
	if a, ok := r.bals[key]; ok {
		return a, nil
	}
	return chain.ZeroAmount(network), nil
}

func (r *fakeReader) GetRecentTransactions(_ context.Context, network, address string, _ int) ([]chain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[network+":"+address], nil
}

func (r *fakeReader) GetTransaction(_ context.Context, _ string, _ string) (*chain.Transaction, error) {
	return nil, nil
}
