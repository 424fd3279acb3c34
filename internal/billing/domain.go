// Package billing implements the invoice engine: generation from eligible
// charges with fractional-ownership proration, payment processing, and
// invoice reversal. Every owner balance mutation happens inside one database
// transaction paired with exactly one owner ledger entry.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	// InvoiceStatusUnpaid is the initial status of a generated invoice.
	InvoiceStatusUnpaid InvoiceStatus = "Unpaid"
	// InvoiceStatusPaid is set once payments cover the full balance due.
	InvoiceStatusPaid InvoiceStatus = "Paid"
)

// Invoice is a bill issued to a single owner for a single patient out of a
// generation batch.
type Invoice struct {
	ID           int64
	OwnerID      int64
	OwnerAccount string
	PatientID    int64
	Date         time.Time
	Status       InvoiceStatus
	Subtotal     decimal.Decimal
	// TaxTotal is reserved; no tax engine exists and the value is always zero.
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	AmountPaid decimal.Decimal
	BalanceDue decimal.Decimal
	PeriodYM   string
	MonthlySeq int
	BatchID    string
	CreatedBy  string
	ModifiedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayNumber renders the human-readable invoice number shown on
// statements, e.g. "ACCT123-0608-2".
func (i Invoice) DisplayNumber() string {
	return fmt.Sprintf("%s-%s-%d", i.OwnerAccount, i.PeriodYM, i.MonthlySeq)
}

// Owner is the account that invoices bill against. Balance is signed;
// positive means the owner owes the practice.
type Owner struct {
	ID            int64
	AccountNumber string
	Name          string
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is an append-only record of money received against an invoice.
type Payment struct {
	ID        int64
	OwnerID   int64
	InvoiceID int64
	Amount    decimal.Decimal
	Date      time.Time
	Method    string
	Reference string
	Notes     string
	CreatedBy string
	CreatedAt time.Time
}

// GenerateResult reports the outcome of one generation batch.
type GenerateResult struct {
	Ok      bool
	Message string
	BatchID string
	// Invoices lists every invoice created by the batch.
	Invoices []Invoice
	// SkippedPatients lists patients whose charges were consumed without an
	// invoice because the ownership directory returned no owners for them.
	SkippedPatients []int64
}
