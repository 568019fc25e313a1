package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

type DealRepo struct {
	pool *pgxpool.Pool
}

func NewDealRepo(pool *pgxpool.Pool) *DealRepo {
	return &DealRepo{pool: pool}
}

const dealColumns = `id, escrow_code, group_id, buyer_user_id, seller_user_id, buyer_address,
	seller_address, network, escrow_address, escrow_private_key, funded_amount, amount_usd,
	fee_amount, funding_tx_hash, status, frozen, dispute_reason, created_at, updated_at,
	funded_at, completed_at`

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.EscrowCode, &d.GroupID, &d.BuyerUserID, &d.SellerUserID, &d.BuyerAddress,
		&d.SellerAddress, &d.Network, &d.EscrowAddress, &d.EscrowPrivateKey, &d.FundedAmount, &d.AmountUSD,
		&d.FeeAmount, &d.FundingTxHash, &d.Status, &d.Frozen, &d.DisputeReason, &d.CreatedAt, &d.UpdatedAt,
		&d.FundedAt, &d.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deals (escrow_code, group_id, buyer_user_id, seller_user_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, d.EscrowCode, d.GroupID, d.BuyerUserID, d.SellerUserID, d.Status,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// Update writes every mutable field back. Callers serialize per deal,
// so a full-row write cannot clobber a concurrent mutation.
func (r *DealRepo) Update(ctx context.Context, d *models.Deal) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET
			buyer_user_id = $1, seller_user_id = $2, buyer_address = $3, seller_address = $4,
			network = $5, escrow_address = $6, escrow_private_key = $7, funded_amount = $8,
			amount_usd = $9, fee_amount = $10, funding_tx_hash = $11, status = $12,
			frozen = $13, dispute_reason = $14, funded_at = $15, completed_at = $16,
			updated_at = now()
		WHERE id = $17
	`, d.BuyerUserID, d.SellerUserID, d.BuyerAddress, d.SellerAddress,
		d.Network, d.EscrowAddress, d.EscrowPrivateKey, d.FundedAmount,
		d.AmountUSD, d.FeeAmount, d.FundingTxHash, d.Status,
		d.Frozen, d.DisputeReason, d.FundedAt, d.CompletedAt, d.ID)
	return err
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *DealRepo) GetByEscrowCode(ctx context.Context, code string) (*models.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE escrow_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *DealRepo) GetByGroupID(ctx context.Context, groupID uuid.UUID) (*models.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `
		SELECT `+dealColumns+` FROM deals WHERE group_id = $1 ORDER BY created_at DESC LIMIT 1
	`, groupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

type DealFilter struct {
	Status  *string
	Network *string
	UserID  *int64
	Limit   int
	Offset  int
}

func (r *DealRepo) List(ctx context.Context, f DealFilter) ([]models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Network != nil {
		where = append(where, fmt.Sprintf("network = $%d", argIdx))
		args = append(args, *f.Network)
		argIdx++
	}
	if f.UserID != nil {
		where = append(where, fmt.Sprintf("(buyer_user_id = $%d OR seller_user_id = $%d)", argIdx, argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// CountByStatus returns how many deals sit in each status, plus the
// summed USD volume of funded and completed deals.
func (r *DealRepo) CountByStatus(ctx context.Context) (map[string]int, string, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM deals GROUP BY status`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, "", err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var volume string
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_usd::numeric), 0)::text FROM deals
		WHERE status IN ($1, $2) AND amount_usd IS NOT NULL
	`, models.DealStatusFunded, models.DealStatusCompleted).Scan(&volume)
	if err != nil {
		return nil, "", err
	}
	return counts, volume, nil
}

// ListAwaitingFunding returns deals with a generated escrow address
// that have not funded yet; the monitor rebuilds its working set from
// these on startup.
func (r *DealRepo) ListAwaitingFunding(ctx context.Context) ([]models.Deal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE status = $1 AND escrow_address IS NOT NULL AND frozen = false
	`, models.DealStatusEscrowGenerated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}
