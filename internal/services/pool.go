package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// GroupStore is the persistence surface the pool needs. Claim must be
// atomic across processes: two concurrent claims never return the same
// group.
type GroupStore interface {
	InitializePool(ctx context.Context, count int) error
	ClaimAvailable(ctx context.Context, occupiedAt, expiresAt time.Time) (*models.Group, error)
	SetCurrentDeal(ctx context.Context, groupID, dealID uuid.UUID, creatorUserID int64) error
	AddParticipant(ctx context.Context, groupID uuid.UUID, userID int64) error
	Transition(ctx context.Context, groupID uuid.UUID, from, to string, cooldownUntil *time.Time) (bool, error)
	Reset(ctx context.Context, groupID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	GetByNumber(ctx context.Context, number int) (*models.Group, error)
	List(ctx context.Context) ([]models.Group, error)
	ListExpiredOccupied(ctx context.Context, now time.Time) ([]models.Group, error)
	ListCooldownFinished(ctx context.Context, now time.Time) ([]models.Group, error)
}

// AuditStore records every privileged or lifecycle-changing action.
type AuditStore interface {
	Log(ctx context.Context, e models.AuditEntry) error
}

// GroupPool manages the fixed pool of reusable deal groups: claiming a
// free group for a new deal, walking its status alongside the deal, and
// reclaiming expired or cooled-down groups back into rotation.
type GroupPool struct {
	groups   GroupStore
	audit    AuditStore
	size     int
	expiry   time.Duration
	cooldown time.Duration
	log      *zap.Logger
}

func NewGroupPool(groups GroupStore, audit AuditStore, size int, expiry, cooldown time.Duration, log *zap.Logger) *GroupPool {
	return &GroupPool{
		groups:   groups,
		audit:    audit,
		size:     size,
		expiry:   expiry,
		cooldown: cooldown,
		log:      log,
	}
}

// Initialize ensures the full pool exists. Safe to call on every start;
// existing groups are left untouched.
func (p *GroupPool) Initialize(ctx context.Context) error {
	if err := p.groups.InitializePool(ctx, p.size); err != nil {
		return wrapError(KindExternalService, err, "initialize group pool")
	}
	return nil
}

// Acquire claims a free group for a new deal and moves it to occupied
// with an expiry deadline. Returns a capacity error when the pool is
// exhausted; the caller should tell the user to retry later.
func (p *GroupPool) Acquire(ctx context.Context) (*models.Group, error) {
	now := time.Now().UTC()
	group, err := p.groups.ClaimAvailable(ctx, now, now.Add(p.expiry))
	if err != nil {
		return nil, wrapError(KindExternalService, err, "claim group")
	}
	if group == nil {
		return nil, newError(KindCapacity, "all groups are busy, try again later")
	}
	return group, nil
}

// BindDeal records which deal occupies a freshly claimed group and who
// opened it.
func (p *GroupPool) BindDeal(ctx context.Context, groupID, dealID uuid.UUID, creatorUserID int64) error {
	if err := p.groups.SetCurrentDeal(ctx, groupID, dealID, creatorUserID); err != nil {
		return wrapError(KindExternalService, err, "bind deal to group")
	}
	return nil
}

// AddParticipant records a user as part of the group's current deal.
func (p *GroupPool) AddParticipant(ctx context.Context, groupID uuid.UUID, userID int64) error {
	if err := p.groups.AddParticipant(ctx, groupID, userID); err != nil {
		return wrapError(KindExternalService, err, "record group participant")
	}
	return nil
}

// Advance walks a group along its status graph in lockstep with its
// deal. Invalid edges are rejected, which also makes concurrent
// advances safe: only one CAS wins.
func (p *GroupPool) Advance(ctx context.Context, groupID uuid.UUID, from, to string) error {
	if !models.IsValidGroupTransition(from, to) {
		return newError(KindState, "invalid group transition %s -> %s", from, to)
	}
	var cooldownUntil *time.Time
	if to == models.GroupStatusCooldown {
		t := time.Now().UTC().Add(p.cooldown)
		cooldownUntil = &t
	}
	ok, err := p.groups.Transition(ctx, groupID, from, to, cooldownUntil)
	if err != nil {
		return wrapError(KindExternalService, err, "transition group")
	}
	if !ok {
		return newError(KindState, "group is not in status %s", from)
	}
	return nil
}

// Release moves a group out of active duty into cooldown regardless of
// which occupied status it is in. Used when a deal ends early
// (cancelled, disputed before funding).
func (p *GroupPool) Release(ctx context.Context, groupID uuid.UUID) error {
	group, err := p.groups.GetByID(ctx, groupID)
	if err != nil {
		return wrapError(KindExternalService, err, "load group")
	}
	if group == nil {
		return newError(KindNotFound, "group not found")
	}
	if group.Status == models.GroupStatusCooldown || group.Status == models.GroupStatusAvailable {
		return nil
	}
	return p.Advance(ctx, groupID, group.Status, models.GroupStatusCooldown)
}

// ResetGroup is the admin override: force a group back to available no
// matter what state it is stuck in. Always audited.
func (p *GroupPool) ResetGroup(ctx context.Context, groupID uuid.UUID, actorID int64) error {
	group, err := p.groups.GetByID(ctx, groupID)
	if err != nil {
		return wrapError(KindExternalService, err, "load group")
	}
	if group == nil {
		return newError(KindNotFound, "group not found")
	}
	if err := p.groups.Reset(ctx, groupID); err != nil {
		return wrapError(KindExternalService, err, "reset group")
	}
	p.writeAudit(ctx, actorID, "group_reset", group)
	p.log.Info("group force-reset",
		zap.Int("group_number", group.Number),
		zap.Int64("actor_id", actorID))
	return nil
}

// ReclaimExpired runs one reclamation sweep: groups whose occupation
// deadline passed move to cooldown, and groups whose cooldown finished
// return to available. Returns how many groups changed state.
func (p *GroupPool) ReclaimExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	reclaimed := 0

	expired, err := p.groups.ListExpiredOccupied(ctx, now)
	if err != nil {
		return 0, wrapError(KindExternalService, err, "list expired groups")
	}
	for i := range expired {
		g := &expired[i]
		if err := p.Advance(ctx, g.ID, g.Status, models.GroupStatusCooldown); err != nil {
			// Lost the race with a live transition; the group is no
			// longer expired, skip it.
			p.log.Debug("skip expired group", zap.Int("group_number", g.Number), zap.Error(err))
			continue
		}
		reclaimed++
		p.writeAudit(ctx, models.ActorSystem, "group_expired", g)
	}

	cooled, err := p.groups.ListCooldownFinished(ctx, now)
	if err != nil {
		return reclaimed, wrapError(KindExternalService, err, "list cooled groups")
	}
	for i := range cooled {
		g := &cooled[i]
		if err := p.groups.Reset(ctx, g.ID); err != nil {
			p.log.Warn("reclaim cooled group", zap.Int("group_number", g.Number), zap.Error(err))
			continue
		}
		reclaimed++
		p.writeAudit(ctx, models.ActorSystem, "group_reclaimed", g)
	}

	if reclaimed > 0 {
		p.log.Info("group reclamation sweep", zap.Int("reclaimed", reclaimed))
	}
	return reclaimed, nil
}

func (p *GroupPool) List(ctx context.Context) ([]models.Group, error) {
	groups, err := p.groups.List(ctx)
	if err != nil {
		return nil, wrapError(KindExternalService, err, "list groups")
	}
	return groups, nil
}

func (p *GroupPool) writeAudit(ctx context.Context, actorID int64, action string, g *models.Group) {
	target := "group"
	entry := models.AuditEntry{
		ActorID: actorID,
		Action:  action,
		Target:  &target,
		GroupID: &g.ID,
		DealID:  g.CurrentDealID,
		Success: true,
	}
	if err := p.audit.Log(ctx, entry); err != nil {
		p.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
