package charges

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetpoint-erp/vetpoint/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the charge ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const chargeColumns = `id, patient_id, owner_id, invoice_id, charge_code_id, administered_by,
	charge_date, description, quantity, unit_price, total_price, taxable, notes, status,
	created_by, modified_by, created_at, updated_at`

func scanCharge(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(
		&c.ID, &c.PatientID, &c.OwnerID, &c.InvoiceID, &c.ChargeCodeID, &c.AdministeredBy,
		&c.Date, &c.Description, &c.Quantity, &c.UnitPrice, &c.TotalPrice, &c.Taxable, &c.Notes, &c.Status,
		&c.CreatedBy, &c.ModifiedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateBatch inserts all rows in one transaction; any failure rolls the
// whole batch back.
func (r *Repository) CreateBatch(ctx context.Context, batch []Charge) ([]Charge, error) {
	created := make([]Charge, 0, len(batch))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range batch {
			row := tx.QueryRow(ctx, `
				INSERT INTO charges (patient_id, owner_id, charge_code_id, administered_by,
					charge_date, description, quantity, unit_price, total_price, taxable, notes, status,
					created_by, modified_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
				RETURNING `+chargeColumns,
				c.PatientID, c.OwnerID, c.ChargeCodeID, c.AdministeredBy,
				c.Date, c.Description, c.Quantity, c.UnitPrice, c.TotalPrice, c.Taxable, c.Notes, c.Status,
				c.CreatedBy, c.ModifiedBy,
			)
			inserted, err := scanCharge(row)
			if err != nil {
				return fmt.Errorf("charges: insert: %w", err)
			}
			created = append(created, *inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns one charge or nil when missing.
func (r *Repository) Get(ctx context.Context, id int64) (*Charge, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1`, id)
	return scanCharge(row)
}

// Update persists editable fields. The status guard in the WHERE clause is a
// second line of defence behind the service check: a charge consumed by a
// concurrent generation batch stays untouched.
func (r *Repository) Update(ctx context.Context, c Charge) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE charges
		SET charge_date=$2, description=$3, quantity=$4, unit_price=$5, total_price=$6,
			taxable=$7, notes=$8, modified_by=$9, updated_at=NOW()
		WHERE id=$1 AND status='ELIGIBLE' AND invoice_id IS NULL`,
		c.ID, c.Date, c.Description, c.Quantity, c.UnitPrice, c.TotalPrice,
		c.Taxable, c.Notes, c.ModifiedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("charges: charge not found or no longer editable")
	}
	return nil
}

// Delete removes an eligible charge.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM charges WHERE id=$1 AND status='ELIGIBLE' AND invoice_id IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("charges: charge not found or no longer deletable")
	}
	return nil
}

// ListForPatient returns charges for a patient, newest first.
func (r *Repository) ListForPatient(ctx context.Context, patientID int64, filter StateFilter) ([]Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE patient_id = $1`
	switch filter {
	case FilterEligible:
		query += ` AND status = 'ELIGIBLE' AND invoice_id IS NULL`
	case FilterBilled:
		query += ` AND status IN ('CONSUMED', 'BILLED')`
	}
	query += ` ORDER BY charge_date DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Charge
	for rows.Next() {
		var c Charge
		if err := rows.Scan(
			&c.ID, &c.PatientID, &c.OwnerID, &c.InvoiceID, &c.ChargeCodeID, &c.AdministeredBy,
			&c.Date, &c.Description, &c.Quantity, &c.UnitPrice, &c.TotalPrice, &c.Taxable, &c.Notes, &c.Status,
			&c.CreatedBy, &c.ModifiedBy, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
