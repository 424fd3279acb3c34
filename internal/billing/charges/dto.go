package charges

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	internalShared "github.com/vetpoint-erp/vetpoint/internal/shared"
)

const maxDescriptionLen = 255

// ChargeItemInput is one line of a charge entry batch.
type ChargeItemInput struct {
	ChargeCodeID int64           `json:"charge_code_id"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Taxable      bool            `json:"taxable"`
	Notes        string          `json:"notes"`
}

// AddChargeBatchInput groups fields for entering a batch of charges against
// one patient and owner.
type AddChargeBatchInput struct {
	PatientID int64             `json:"patient_id"`
	OwnerID   int64             `json:"owner_id"`
	Date      time.Time         `json:"date"`
	Actor     string            `json:"actor"`
	Items     []ChargeItemInput `json:"items"`
}

// Validate checks the batch before any write. Line errors are aggregated so
// the caller sees every problem at once; any error rejects the whole batch.
func (in AddChargeBatchInput) Validate(now time.Time) error {
	if in.PatientID == 0 {
		return fmt.Errorf("%w: patient id required", shared.ErrInvalidInput)
	}
	if in.OwnerID == 0 {
		return fmt.Errorf("%w: owner id required", shared.ErrInvalidInput)
	}
	if in.Actor == "" {
		return internalShared.ErrActorRequired
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", shared.ErrInvalidInput)
	}
	if in.Date.After(now) {
		return fmt.Errorf("%w: date cannot be in the future", shared.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: no charge items provided", shared.ErrInvalidInput)
	}
	var lineErrs []string
	for i, item := range in.Items {
		line := i + 1
		if item.ChargeCodeID == 0 {
			lineErrs = append(lineErrs, fmt.Sprintf("line %d: charge code is required", line))
		}
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			lineErrs = append(lineErrs, fmt.Sprintf("line %d: description is required", line))
		} else if len(desc) > maxDescriptionLen {
			lineErrs = append(lineErrs, fmt.Sprintf("line %d: description cannot exceed %d characters", line, maxDescriptionLen))
		}
		if item.Quantity.LessThanOrEqual(decimal.Zero) {
			lineErrs = append(lineErrs, fmt.Sprintf("line %d: quantity must be greater than zero", line))
		}
		if item.UnitPrice.IsNegative() {
			lineErrs = append(lineErrs, fmt.Sprintf("line %d: unit price cannot be negative", line))
		}
	}
	if len(lineErrs) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(lineErrs, "; "))
	}
	return nil
}

// UpdateChargeInput carries editable fields for an eligible charge. Nil
// pointers leave the current value in place.
type UpdateChargeInput struct {
	ChargeID    int64            `json:"charge_id"`
	Date        *time.Time       `json:"date"`
	Description *string          `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Taxable     *bool            `json:"taxable"`
	Notes       *string          `json:"notes"`
	Actor       string           `json:"actor"`
}

// Validate checks the update request.
func (in UpdateChargeInput) Validate() error {
	if in.ChargeID == 0 {
		return fmt.Errorf("%w: charge id required", shared.ErrInvalidInput)
	}
	if in.Actor == "" {
		return internalShared.ErrActorRequired
	}
	if in.Quantity != nil && in.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: quantity must be greater than zero", shared.ErrInvalidInput)
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative", shared.ErrInvalidInput)
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return fmt.Errorf("%w: description is required", shared.ErrInvalidInput)
		}
		if len(desc) > maxDescriptionLen {
			return fmt.Errorf("%w: description cannot exceed %d characters", shared.ErrInvalidInput, maxDescriptionLen)
		}
	}
	return nil
}

// StateFilter selects which lifecycle states a listing returns.
type StateFilter string

const (
	// FilterAll returns every charge for the patient.
	FilterAll StateFilter = ""
	// FilterEligible returns only billable source charges.
	FilterEligible StateFilter = "eligible"
	// FilterBilled returns billed line items and consumed sources.
	FilterBilled StateFilter = "billed"
)
