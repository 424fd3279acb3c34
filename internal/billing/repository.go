package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vetpoint-erp/vetpoint/internal/billing/charges"
	billingshared "github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/ledger"
	"github.com/vetpoint-erp/vetpoint/internal/ownership"
	"github.com/vetpoint-erp/vetpoint/internal/platform/db"
)

// Repository is the engine's data access port. Reads run on the pool;
// mutations run through WithTx so that one batch is one transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoicesForOwner(ctx context.Context, ownerID int64) ([]Invoice, error)
	ListLineItems(ctx context.Context, invoiceID int64) ([]charges.Charge, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRepository is the transactional surface the engine mutates through. It
// spans charges, invoices, owners, payments, and the owner ledger because the
// engine's invariants hold across all five tables at once.
type TxRepository interface {
	GetChargesForUpdate(ctx context.Context, ids []int64) ([]charges.Charge, error)
	ListOwnership(ctx context.Context, patientID int64) ([]ownership.Share, error)
	GetOwnerForUpdate(ctx context.Context, ownerID int64) (*Owner, error)
	NextMonthlySeq(ctx context.Context, ownerID int64, periodYM string) (int, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertLineItem(ctx context.Context, item charges.Charge) error
	MarkChargesConsumed(ctx context.Context, ids []int64) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	UpdateInvoicePayment(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id int64) error
	UpdateOwnerBalance(ctx context.Context, ownerID int64, balance decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) error
}

// PgRepository implements Repository on PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const invoiceColumns = `id, owner_id, owner_account, patient_id, invoice_date, status,
	subtotal, tax_total, grand_total, amount_paid, balance_due,
	period_ym, monthly_seq, batch_id, created_by, modified_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.OwnerID, &inv.OwnerAccount, &inv.PatientID, &inv.Date, &inv.Status,
		&inv.Subtotal, &inv.TaxTotal, &inv.GrandTotal, &inv.AmountPaid, &inv.BalanceDue,
		&inv.PeriodYM, &inv.MonthlySeq, &inv.BatchID, &inv.CreatedBy, &inv.ModifiedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoice returns one invoice or nil when missing.
func (r *PgRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// ListInvoicesForOwner returns an owner's invoices, newest first.
func (r *PgRepository) ListInvoicesForOwner(ctx context.Context, ownerID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE owner_id = $1 ORDER BY invoice_date DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("billing: list invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

const lineItemColumns = `id, patient_id, owner_id, invoice_id, charge_code_id, administered_by,
	charge_date, description, quantity, unit_price, total_price, taxable, notes, status,
	created_by, modified_by, created_at, updated_at`

// ListLineItems returns the billed copies attached to an invoice.
func (r *PgRepository) ListLineItems(ctx context.Context, invoiceID int64) ([]charges.Charge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineItemColumns+` FROM billed_line_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("billing: list line items: %w", err)
	}
	defer rows.Close()
	var out []charges.Charge
	for rows.Next() {
		var c charges.Charge
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

const paymentColumns = `id, owner_id, invoice_id, amount, payment_date, method, reference, notes, created_by, created_at`

// ListPayments returns payments recorded against an invoice, oldest first.
func (r *PgRepository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("billing: list payments: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.InvoiceID, &p.Amount, &p.Date, &p.Method, &p.Reference, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

// GetChargesForUpdate row-locks the requested charges for the rest of the
// transaction. Locking here closes the window between selecting eligible
// charges and committing the batch that consumes them.
func (r *pgTxRepository) GetChargesForUpdate(ctx context.Context, ids []int64) ([]charges.Charge, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineItemColumns+` FROM charges WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("billing: lock charges: %w", err)
	}
	defer rows.Close()
	var out []charges.Charge
	for rows.Next() {
		var c charges.Charge
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

func (r *pgTxRepository) ListOwnership(ctx context.Context, patientID int64) ([]ownership.Share, error) {
	rows, err := r.tx.Query(ctx, `SELECT patient_id, owner_id, percentage FROM patient_owners WHERE patient_id = $1 ORDER BY id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("billing: list ownership: %w", err)
	}
	defer rows.Close()
	var out []ownership.Share
	for rows.Next() {
		var s ownership.Share
		if err := rows.Scan(&s.PatientID, &s.OwnerID, &s.Percentage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgTxRepository) GetOwnerForUpdate(ctx context.Context, ownerID int64) (*Owner, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, account_number, name, balance, created_at, updated_at FROM owners WHERE id = $1 FOR UPDATE`, ownerID)
	var o Owner
	err := row.Scan(&o.ID, &o.AccountNumber, &o.Name, &o.Balance, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// NextMonthlySeq returns one past the owner's highest sequence number in the
// given period. Safe against concurrent batches for the same owner because
// the owner row is already locked.
func (r *pgTxRepository) NextMonthlySeq(ctx context.Context, ownerID int64, periodYM string) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(monthly_seq), 0) + 1 FROM invoices WHERE owner_id = $1 AND period_ym = $2`, ownerID, periodYM).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("billing: next monthly seq: %w", err)
	}
	return seq, nil
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (owner_id, owner_account, patient_id, invoice_date, status,
			subtotal, tax_total, grand_total, amount_paid, balance_due,
			period_ym, monthly_seq, batch_id, created_by, modified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING `+invoiceColumns,
		inv.OwnerID, inv.OwnerAccount, inv.PatientID, inv.Date, inv.Status,
		inv.Subtotal, inv.TaxTotal, inv.GrandTotal, inv.AmountPaid, inv.BalanceDue,
		inv.PeriodYM, inv.MonthlySeq, inv.BatchID, inv.CreatedBy, inv.ModifiedBy,
	)
	inserted, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, fmt.Errorf("billing: insert invoice: %w", err)
	}
	return *inserted, nil
}

func (r *pgTxRepository) InsertLineItem(ctx context.Context, item charges.Charge) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO billed_line_items (patient_id, owner_id, invoice_id, charge_code_id, administered_by,
			charge_date, description, quantity, unit_price, total_price, taxable, notes, status,
			created_by, modified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`,
		item.PatientID, item.OwnerID, item.InvoiceID, item.ChargeCodeID, item.AdministeredBy,
		item.Date, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, item.Taxable, item.Notes, item.Status,
		item.CreatedBy, item.ModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("billing: insert line item: %w", err)
	}
	return nil
}

// MarkChargesConsumed flips the selected charges out of the eligible state.
// The status guard in the WHERE clause re-validates each row at commit time;
// an affected-row mismatch means a concurrent writer touched one of the
// charges after selection, and the whole batch rolls back.
func (r *pgTxRepository) MarkChargesConsumed(ctx context.Context, ids []int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE charges SET status = $1, updated_at = NOW() WHERE id = ANY($2) AND status = $3 AND invoice_id IS NULL`,
		charges.StatusConsumed, ids, charges.StatusEligible)
	if err != nil {
		return fmt.Errorf("billing: consume charges: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return billingshared.ErrChargeNotEligible
	}
	return nil
}

func (r *pgTxRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO payments (owner_id, invoice_id, amount, payment_date, method, reference, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING `+paymentColumns,
		p.OwnerID, p.InvoiceID, p.Amount, p.Date, p.Method, p.Reference, p.Notes, p.CreatedBy,
	)
	var out Payment
	err := row.Scan(&out.ID, &out.OwnerID, &out.InvoiceID, &out.Amount, &out.Date, &out.Method, &out.Reference, &out.Notes, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("billing: insert payment: %w", err)
	}
	return out, nil
}

func (r *pgTxRepository) UpdateInvoicePayment(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET amount_paid = $1, balance_due = $2, status = $3, modified_by = $4, updated_at = NOW() WHERE id = $5`,
		inv.AmountPaid, inv.BalanceDue, inv.Status, inv.ModifiedBy, inv.ID)
	if err != nil {
		return fmt.Errorf("billing: update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingshared.ErrInvoiceNotFound
	}
	return nil
}

// DeleteInvoice removes the invoice row; billed line items and payments go
// with it via ON DELETE CASCADE.
func (r *pgTxRepository) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("billing: delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingshared.ErrInvoiceNotFound
	}
	return nil
}

func (r *pgTxRepository) UpdateOwnerBalance(ctx context.Context, ownerID int64, balance decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE owners SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, ownerID)
	if err != nil {
		return fmt.Errorf("billing: update owner balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingshared.ErrOwnerNotFound
	}
	return nil
}

func (r *pgTxRepository) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO owner_ledger (owner_id, description, amount_change, new_balance, entry_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.OwnerID, entry.Description, entry.AmountChange, entry.NewBalance, entry.EntryDate, entry.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("billing: insert ledger entry: %w", err)
	}
	return nil
}
