package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

// Repository provides PostgreSQL backed reads over owner_ledger and owners.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// History returns ledger entries for an owner, newest first.
func (r *Repository) History(ctx context.Context, ownerID int64, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM owner_ledger WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, description, amount_change, new_balance, entry_date, created_by
		FROM owner_ledger
		WHERE owner_id = $1
		ORDER BY entry_date DESC, id DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Description, &e.AmountChange, &e.NewBalance, &e.EntryDate, &e.CreatedBy); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// StoredBalance returns the owner's current balance column.
func (r *Repository) StoredBalance(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT balance FROM owners WHERE id = $1`, ownerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, shared.ErrNotFound
	}
	return balance, err
}

// LedgerSum returns the sum of all amount changes recorded for an owner.
func (r *Repository) LedgerSum(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount_change), 0) FROM owner_ledger WHERE owner_id = $1`, ownerID).Scan(&sum)
	return sum, err
}

// ListOwnerIDs returns every owner id, used by the integrity scan.
func (r *Repository) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM owners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
