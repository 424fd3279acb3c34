package charges

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus enumerates charge lifecycle values.
type ChargeStatus string

const (
	// StatusEligible marks a source charge awaiting billing. Only eligible
	// charges may be edited, deleted, or selected for invoice generation.
	StatusEligible ChargeStatus = "ELIGIBLE"
	// StatusConsumed marks a source charge selected into a generation batch.
	// Terminal with respect to billing eligibility.
	StatusConsumed ChargeStatus = "CONSUMED"
	// StatusBilled marks a billed line item created per invoice. Billed rows
	// are derived copies, never the source row itself.
	StatusBilled ChargeStatus = "BILLED"
)

// Charge is a single billable line item for a patient.
type Charge struct {
	ID             int64
	PatientID      int64
	OwnerID        int64
	InvoiceID      *int64
	ChargeCodeID   int64
	AdministeredBy string
	Date           time.Time
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	TotalPrice     decimal.Decimal
	Taxable        bool
	Notes          string
	Status         ChargeStatus
	CreatedBy      string
	ModifiedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Billable reports whether the charge may still enter invoice generation.
func (c Charge) Billable() bool {
	return c.Status == StatusEligible && c.InvoiceID == nil
}
