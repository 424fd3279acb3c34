// Package shared holds the error taxonomy for the billing engine.
package shared

import "errors"

var (
	// ErrInvalidInput wraps boundary validation failures; the detail message
	// carries the specific field or line errors.
	ErrInvalidInput = errors.New("billing: invalid input")
	// ErrNoChargesSelected indicates an empty generation batch.
	ErrNoChargesSelected = errors.New("billing: no charges were selected to be invoiced")
	// ErrChargeNotFound indicates a requested charge id does not exist.
	ErrChargeNotFound = errors.New("billing: charge not found")
	// ErrChargeNotEligible indicates a charge already consumed or billed.
	ErrChargeNotEligible = errors.New("billing: charge has already been processed")
	// ErrChargeInvoiced indicates edit/delete of an invoiced charge.
	ErrChargeInvoiced = errors.New("billing: charge belongs to an invoice")
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrInvoicePaid indicates a payment against a fully paid invoice.
	ErrInvoicePaid = errors.New("billing: invoice is already paid")
	// ErrOwnerNotFound indicates a missing owner record.
	ErrOwnerNotFound = errors.New("billing: owner not found")
	// ErrAmountNotPositive indicates a zero or negative payment amount.
	ErrAmountNotPositive = errors.New("billing: amount must be greater than zero")
	// ErrAmountExceedsBalance indicates a payment above the balance due.
	ErrAmountExceedsBalance = errors.New("billing: amount exceeds invoice balance due")
)
