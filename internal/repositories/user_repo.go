package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, telegram_id, username, display_name, first_name, is_banned,
	is_moderator, is_admin, deals_count, total_volume, created_at, last_active`

// Upsert creates the user on first contact and refreshes profile
// fields plus last_active on every subsequent one.
func (r *UserRepo) Upsert(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, display_name, first_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			first_name = EXCLUDED.first_name,
			last_active = now()
		RETURNING `+userColumns,
		u.TelegramID, u.Username, u.DisplayName, u.FirstName,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.FirstName, &u.IsBanned,
		&u.IsModerator, &u.IsAdmin, &u.DealsCount, &u.TotalVolume, &u.CreatedAt, &u.LastActive)
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE telegram_id = $1
	`, telegramID).Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.FirstName, &u.IsBanned,
		&u.IsModerator, &u.IsAdmin, &u.DealsCount, &u.TotalVolume, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) SetBanned(ctx context.Context, telegramID int64, banned bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_banned = $1 WHERE telegram_id = $2`, banned, telegramID)
	return err
}

func (r *UserRepo) SetModerator(ctx context.Context, telegramID int64, moderator bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_moderator = $1 WHERE telegram_id = $2`, moderator, telegramID)
	return err
}

// IncrementDeals bumps the deal counter after a completed deal.
func (r *UserRepo) IncrementDeals(ctx context.Context, telegramID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET deals_count = deals_count + 1 WHERE telegram_id = $1`, telegramID)
	return err
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.FirstName, &u.IsBanned,
			&u.IsModerator, &u.IsAdmin, &u.DealsCount, &u.TotalVolume, &u.CreatedAt, &u.LastActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
