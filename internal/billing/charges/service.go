package charges

import (
	"context"
	"strings"
	"time"

	"github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/money"
)

// RepositoryPort defines data access methods for the charge ledger.
type RepositoryPort interface {
	CreateBatch(ctx context.Context, charges []Charge) ([]Charge, error)
	Get(ctx context.Context, id int64) (*Charge, error)
	Update(ctx context.Context, charge Charge) error
	Delete(ctx context.Context, id int64) error
	ListForPatient(ctx context.Context, patientID int64, filter StateFilter) ([]Charge, error)
}

// Service guards the charge ledger state machine for front-office callers.
// Status transitions into CONSUMED/BILLED happen only inside the billing
// engine; this service rejects edits once a charge has left ELIGIBLE.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AddChargeBatch enters a batch of charges for one patient and owner. Each
// item becomes one ELIGIBLE source charge; the whole batch is one insert
// transaction.
func (s *Service) AddChargeBatch(ctx context.Context, input AddChargeBatchInput) ([]Charge, error) {
	if err := input.Validate(s.now()); err != nil {
		return nil, err
	}
	rows := make([]Charge, 0, len(input.Items))
	for _, item := range input.Items {
		rows = append(rows, Charge{
			PatientID:      input.PatientID,
			OwnerID:        input.OwnerID,
			ChargeCodeID:   item.ChargeCodeID,
			AdministeredBy: input.Actor,
			Date:           input.Date,
			Description:    strings.TrimSpace(item.Description),
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     money.LineTotal(item.Quantity, item.UnitPrice),
			Taxable:        item.Taxable,
			Notes:          item.Notes,
			Status:         StatusEligible,
			CreatedBy:      input.Actor,
			ModifiedBy:     input.Actor,
		})
	}
	return s.repo.CreateBatch(ctx, rows)
}

// UpdateCharge edits an eligible source charge and recomputes its total.
func (s *Service) UpdateCharge(ctx context.Context, input UpdateChargeInput) (*Charge, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	charge, err := s.repo.Get(ctx, input.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, shared.ErrChargeNotFound
	}
	if charge.InvoiceID != nil {
		return nil, shared.ErrChargeInvoiced
	}
	if charge.Status != StatusEligible {
		return nil, shared.ErrChargeNotEligible
	}
	if input.Date != nil {
		charge.Date = *input.Date
	}
	if input.Description != nil {
		charge.Description = strings.TrimSpace(*input.Description)
	}
	if input.Quantity != nil {
		charge.Quantity = *input.Quantity
	}
	if input.UnitPrice != nil {
		charge.UnitPrice = *input.UnitPrice
	}
	if input.Taxable != nil {
		charge.Taxable = *input.Taxable
	}
	if input.Notes != nil {
		charge.Notes = *input.Notes
	}
	charge.TotalPrice = money.LineTotal(charge.Quantity, charge.UnitPrice)
	charge.ModifiedBy = input.Actor
	if err := s.repo.Update(ctx, *charge); err != nil {
		return nil, err
	}
	return charge, nil
}

// DeleteCharge removes an eligible source charge.
func (s *Service) DeleteCharge(ctx context.Context, id int64) error {
	charge, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if charge == nil {
		return shared.ErrChargeNotFound
	}
	if charge.InvoiceID != nil {
		return shared.ErrChargeInvoiced
	}
	if charge.Status != StatusEligible {
		return shared.ErrChargeNotEligible
	}
	return s.repo.Delete(ctx, id)
}

// GetCharge returns one charge by id.
func (s *Service) GetCharge(ctx context.Context, id int64) (*Charge, error) {
	charge, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, shared.ErrChargeNotFound
	}
	return charge, nil
}

// ListForPatient returns charges for a patient filtered by lifecycle state.
func (s *Service) ListForPatient(ctx context.Context, patientID int64, filter StateFilter) ([]Charge, error) {
	return s.repo.ListForPatient(ctx, patientID, filter)
}
