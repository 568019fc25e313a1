package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, e models.AuditEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entries (actor_id, username, action, target, group_id, deal_id, details, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ActorID, e.Username, e.Action, e.Target, e.GroupID, e.DealID, e.Details, e.Success)
	return err
}

type AuditFilter struct {
	ActorID *int64
	Action  *string
	DealID  *uuid.UUID
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

func (r *AuditRepo) Query(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	query := `
		SELECT id, actor_id, username, action, target, group_id, deal_id, details, success, created_at
		FROM audit_entries
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.ActorID != nil {
		where = append(where, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, *f.ActorID)
		argIdx++
	}
	if f.Action != nil {
		where = append(where, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, *f.Action)
		argIdx++
	}
	if f.DealID != nil {
		where = append(where, fmt.Sprintf("deal_id = $%d", argIdx))
		args = append(args, *f.DealID)
		argIdx++
	}
	if f.Since != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *f.Since)
		argIdx++
	}
	if f.Until != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *f.Until)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Username, &e.Action, &e.Target, &e.GroupID,
			&e.DealID, &e.Details, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
