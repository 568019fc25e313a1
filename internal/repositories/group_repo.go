package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

type GroupRepo struct {
	pool *pgxpool.Pool
}

func NewGroupRepo(pool *pgxpool.Pool) *GroupRepo {
	return &GroupRepo{pool: pool}
}

const groupColumns = `id, number, telegram_chat_id, status, current_deal_id, creator_user_id,
	participant_ids, created_at, occupied_at, expires_at, cooldown_until`

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Number, &g.TelegramChatID, &g.Status, &g.CurrentDealID, &g.CreatorUserID,
		&g.ParticipantIDs, &g.CreatedAt, &g.OccupiedAt, &g.ExpiresAt, &g.CooldownUntil)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// InitializePool inserts groups numbered 1..count if they do not exist
// yet. Existing groups are left untouched, so growing the pool is safe
// while shrinking requires manual intervention.
func (r *GroupRepo) InitializePool(ctx context.Context, count int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO groups (number, status)
		SELECT n, 'available' FROM generate_series(1, $1) AS n
		ON CONFLICT (number) DO NOTHING
	`, count)
	return err
}

// ClaimAvailable atomically selects the lowest-numbered available group
// and marks it occupied. SKIP LOCKED keeps concurrent claimers from
// ever receiving the same row; (nil, nil) means the pool is exhausted.
func (r *GroupRepo) ClaimAvailable(ctx context.Context, occupiedAt, expiresAt time.Time) (*models.Group, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE groups SET status = $1, occupied_at = $2, expires_at = $3
		WHERE id = (
			SELECT id FROM groups
			WHERE status = $4
			ORDER BY number
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+groupColumns,
		models.GroupStatusOccupied, occupiedAt, expiresAt, models.GroupStatusAvailable)

	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SetCurrentDeal links a freshly created deal to its claimed group.
func (r *GroupRepo) SetCurrentDeal(ctx context.Context, groupID, dealID uuid.UUID, creatorUserID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE groups SET current_deal_id = $1, creator_user_id = $2,
			participant_ids = ARRAY[$2]::bigint[]
		WHERE id = $3
	`, dealID, creatorUserID, groupID)
	return err
}

// AddParticipant records a user as active in the group's deal.
func (r *GroupRepo) AddParticipant(ctx context.Context, groupID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE groups SET participant_ids = array_append(participant_ids, $1)
		WHERE id = $2 AND NOT ($1 = ANY(participant_ids))
	`, userID, groupID)
	return err
}

// Transition moves a group from one status to another, compare-and-set
// on the current status. Returns false when the group was not in the
// expected status (a concurrent writer got there first).
func (r *GroupRepo) Transition(ctx context.Context, groupID uuid.UUID, from, to string, cooldownUntil *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE groups SET status = $1, cooldown_until = COALESCE($2, cooldown_until)
		WHERE id = $3 AND status = $4
	`, to, cooldownUntil, groupID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reset forces a group back to available and clears every occupancy
// field. Used by the cooldown reclaimer and the admin override.
func (r *GroupRepo) Reset(ctx context.Context, groupID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE groups SET status = $1, current_deal_id = NULL, creator_user_id = NULL,
			participant_ids = '{}', occupied_at = NULL, expires_at = NULL, cooldown_until = NULL
		WHERE id = $2
	`, models.GroupStatusAvailable, groupID)
	return err
}

func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GroupRepo) GetByNumber(ctx context.Context, number int) (*models.Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GroupRepo) List(ctx context.Context) ([]models.Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// ListExpiredOccupied returns groups whose occupation expired before
// reaching funded; the reclaimer moves these into cooldown.
func (r *GroupRepo) ListExpiredOccupied(ctx context.Context, now time.Time) ([]models.Group, error) {
	return r.listWhere(ctx, `
		WHERE status IN ($1, $2) AND expires_at IS NOT NULL AND expires_at <= $3
	`, models.GroupStatusOccupied, models.GroupStatusEscrowCreated, now)
}

// ListCooldownFinished returns groups whose cooldown has elapsed and
// that are ready to return to the available pool.
func (r *GroupRepo) ListCooldownFinished(ctx context.Context, now time.Time) ([]models.Group, error) {
	return r.listWhere(ctx, `
		WHERE status = $1 AND cooldown_until IS NOT NULL AND cooldown_until <= $2
	`, models.GroupStatusCooldown, now)
}

func (r *GroupRepo) listWhere(ctx context.Context, where string, args ...any) ([]models.Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups `+where+` ORDER BY number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}
