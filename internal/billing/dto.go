package billing

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	billingshared "github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

var validate = validator.New()

// GenerateInvoicesInput selects eligible charges for one generation batch.
type GenerateInvoicesInput struct {
	ChargeIDs []int64 `json:"charge_ids"`
	Actor     string  `json:"actor"`
}

// Validate checks the batch request before any transaction starts.
func (in GenerateInvoicesInput) Validate() error {
	if len(in.ChargeIDs) == 0 {
		return billingshared.ErrNoChargesSelected
	}
	for _, id := range in.ChargeIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid charge id in selection", billingshared.ErrInvalidInput)
		}
	}
	if in.Actor == "" {
		return shared.ErrActorRequired
	}
	return nil
}

// RecordPaymentInput carries a payment submission. IdempotencyKey is
// optional; when present, retried submissions with the same key are rejected
// without side effects.
type RecordPaymentInput struct {
	InvoiceID      int64           `json:"invoice_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
	Method         string          `json:"method" validate:"required"`
	Reference      string          `json:"reference"`
	Notes          string          `json:"notes"`
	Actor          string          `json:"actor" validate:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Validate checks the payment request. The amount bound against the invoice
// balance due is enforced again inside the transaction; this only rejects
// requests that can never succeed.
func (in RecordPaymentInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		if in.InvoiceID == 0 {
			return billingshared.ErrInvoiceNotFound
		}
		if in.Actor == "" {
			return shared.ErrActorRequired
		}
		return fmt.Errorf("%w: payment method required", billingshared.ErrInvalidInput)
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return billingshared.ErrAmountNotPositive
	}
	return nil
}

// DeleteInvoiceInput identifies an invoice to reverse.
type DeleteInvoiceInput struct {
	InvoiceID int64  `json:"invoice_id"`
	Actor     string `json:"actor"`
}

// Validate checks the reversal request.
func (in DeleteInvoiceInput) Validate() error {
	if in.InvoiceID == 0 {
		return billingshared.ErrInvoiceNotFound
	}
	if in.Actor == "" {
		return shared.ErrActorRequired
	}
	return nil
}
