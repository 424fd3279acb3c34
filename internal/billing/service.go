package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetpoint-erp/vetpoint/internal/billing/charges"
	billingshared "github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/ledger"
	"github.com/vetpoint-erp/vetpoint/internal/money"
	"github.com/vetpoint-erp/vetpoint/internal/ownership"
	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

// AuditPort records operational audit entries for engine operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort deduplicates retried payment submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// BalanceInvalidator drops cached owner balances after committed mutations.
type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context, ownerID int64)
}

// Service is the billing engine.
type Service struct {
	repo     Repository
	audit    AuditPort
	idem     IdempotencyPort
	balances BalanceInvalidator
	now      func() time.Time
}

// NewService builds the engine. audit, idem, and balances may be nil.
func NewService(repo Repository, audit AuditPort, idem IdempotencyPort, balances BalanceInvalidator) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, balances: balances, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GenerateInvoices turns a selection of eligible charges into invoices, one
// per (patient, owner) pair, prorating each charge by ownership percentage.
// The whole batch is one transaction: any failure leaves no side effects.
func (s *Service) GenerateInvoices(ctx context.Context, input GenerateInvoicesInput) (GenerateResult, error) {
	if err := input.Validate(); err != nil {
		return GenerateResult{}, err
	}

	batchID := uuid.New().String()
	batchDate := s.now()
	periodYM := batchDate.Format("0601")

	var result GenerateResult
	changedOwners := make(map[int64]struct{})

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetChargesForUpdate(ctx, input.ChargeIDs)
		if err != nil {
			return err
		}
		byID := make(map[int64]charges.Charge, len(locked))
		for _, c := range locked {
			byID[c.ID] = c
		}
		byPatient := make(map[int64][]charges.Charge)
		var patientOrder []int64
		for _, id := range input.ChargeIDs {
			c, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: charge %d", billingshared.ErrChargeNotFound, id)
			}
			if !c.Billable() {
				return fmt.Errorf("%w: charge %d", billingshared.ErrChargeNotEligible, id)
			}
			if _, seen := byPatient[c.PatientID]; !seen {
				patientOrder = append(patientOrder, c.PatientID)
			}
			byPatient[c.PatientID] = append(byPatient[c.PatientID], c)
		}

		for _, patientID := range patientOrder {
			shares, err := tx.ListOwnership(ctx, patientID)
			if err != nil {
				return err
			}
			shares = ownership.Dedupe(shares)
			if len(shares) == 0 {
				// Charges for ownerless patients are still consumed below so
				// they cannot re-enter a later batch.
				result.SkippedPatients = append(result.SkippedPatients, patientID)
				continue
			}
			multiOwner := len(shares) > 1

			for _, share := range shares {
				owner, err := tx.GetOwnerForUpdate(ctx, share.OwnerID)
				if err != nil {
					return err
				}
				if owner == nil {
					return fmt.Errorf("%w: owner %d", billingshared.ErrOwnerNotFound, share.OwnerID)
				}
				seq, err := tx.NextMonthlySeq(ctx, owner.ID, periodYM)
				if err != nil {
					return err
				}

				subtotal := decimal.Zero
				lines := make([]charges.Charge, 0, len(byPatient[patientID]))
				for _, c := range byPatient[patientID] {
					prorated := money.ProratedShare(c.TotalPrice, share.Percentage)
					desc := c.Description
					if multiOwner {
						desc = fmt.Sprintf("%s (%s%% Share)", desc, share.Percentage.StringFixed(2))
					}
					line := c
					line.ID = 0
					line.OwnerID = owner.ID
					line.Description = desc
					line.UnitPrice = money.ProratedUnitPrice(c.UnitPrice, share.Percentage)
					line.TotalPrice = prorated
					line.Status = charges.StatusBilled
					line.CreatedBy = input.Actor
					line.ModifiedBy = input.Actor
					lines = append(lines, line)
					subtotal = subtotal.Add(prorated)
				}

				inv := Invoice{
					OwnerID:      owner.ID,
					OwnerAccount: owner.AccountNumber,
					PatientID:    patientID,
					Date:         batchDate,
					Status:       InvoiceStatusUnpaid,
					Subtotal:     subtotal,
					TaxTotal:     decimal.Zero,
					GrandTotal:   subtotal,
					AmountPaid:   decimal.Zero,
					BalanceDue:   subtotal,
					PeriodYM:     periodYM,
					MonthlySeq:   seq,
					BatchID:      batchID,
					CreatedBy:    input.Actor,
					ModifiedBy:   input.Actor,
				}
				inserted, err := tx.InsertInvoice(ctx, inv)
				if err != nil {
					return err
				}
				for _, line := range lines {
					line.InvoiceID = &inserted.ID
					if err := tx.InsertLineItem(ctx, line); err != nil {
						return err
					}
				}

				newBalance := owner.Balance.Add(subtotal)
				if err := tx.UpdateOwnerBalance(ctx, owner.ID, newBalance); err != nil {
					return err
				}
				if err := tx.InsertLedgerEntry(ctx, ledger.Entry{
					OwnerID:      owner.ID,
					Description:  fmt.Sprintf("Invoice %s - patient %d", inserted.DisplayNumber(), patientID),
					AmountChange: subtotal,
					NewBalance:   newBalance,
					EntryDate:    batchDate,
					CreatedBy:    input.Actor,
				}); err != nil {
					return err
				}
				changedOwners[owner.ID] = struct{}{}
				result.Invoices = append(result.Invoices, inserted)
			}
		}

		// All requested charges leave the eligible state, including those of
		// skipped ownerless patients. The guarded update re-validates every
		// row against concurrent writers before commit.
		return tx.MarkChargesConsumed(ctx, input.ChargeIDs)
	})
	if err != nil {
		return GenerateResult{}, err
	}

	for ownerID := range changedOwners {
		if s.balances != nil {
			s.balances.InvalidateBalance(ctx, ownerID)
		}
	}

	result.Ok = true
	result.BatchID = batchID
	result.Message = fmt.Sprintf("generated %d invoice(s) from %d charge(s)", len(result.Invoices), len(input.ChargeIDs))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor,
			Action:   "billing.generate",
			Entity:   "invoice_batch",
			EntityID: batchID,
			Meta: map[string]any{
				"charge_ids":       input.ChargeIDs,
				"invoice_count":    len(result.Invoices),
				"skipped_patients": result.SkippedPatients,
			},
			At: batchDate,
		})
	}
	return result, nil
}

// RecordPayment applies a payment to an unpaid invoice, decrements the
// owner's balance, and appends the matching ledger entry, all in one
// transaction.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Payment, error) {
	if err := input.Validate(); err != nil {
		return Payment{}, err
	}
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "billing.payment"); err != nil {
			return Payment{}, err
		}
	}

	paymentDate := input.Date
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	var payment Payment
	var ownerID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return billingshared.ErrInvoiceNotFound
		}
		if inv.Status == InvoiceStatusPaid {
			return billingshared.ErrInvoicePaid
		}
		if input.Amount.GreaterThan(inv.BalanceDue) {
			return billingshared.ErrAmountExceedsBalance
		}
		owner, err := tx.GetOwnerForUpdate(ctx, inv.OwnerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("%w: owner %d", billingshared.ErrOwnerNotFound, inv.OwnerID)
		}

		payment, err = tx.InsertPayment(ctx, Payment{
			OwnerID:   owner.ID,
			InvoiceID: inv.ID,
			Amount:    input.Amount,
			Date:      paymentDate,
			Method:    input.Method,
			Reference: input.Reference,
			Notes:     input.Notes,
			CreatedBy: input.Actor,
		})
		if err != nil {
			return err
		}

		inv.AmountPaid = inv.AmountPaid.Add(input.Amount)
		inv.BalanceDue = inv.BalanceDue.Sub(input.Amount)
		if inv.BalanceDue.LessThanOrEqual(decimal.Zero) {
			inv.Status = InvoiceStatusPaid
		}
		inv.ModifiedBy = input.Actor
		if err := tx.UpdateInvoicePayment(ctx, *inv); err != nil {
			return err
		}

		newBalance := owner.Balance.Sub(input.Amount)
		if err := tx.UpdateOwnerBalance(ctx, owner.ID, newBalance); err != nil {
			return err
		}
		desc := fmt.Sprintf("Payment %s - invoice %s (%s)", money.FormatUSD(input.Amount), inv.DisplayNumber(), input.Method)
		if input.Reference != "" {
			desc = fmt.Sprintf("%s #%s", desc, input.Reference)
		}
		if err := tx.InsertLedgerEntry(ctx, ledger.Entry{
			OwnerID:      owner.ID,
			Description:  desc,
			AmountChange: input.Amount.Neg(),
			NewBalance:   newBalance,
			EntryDate:    paymentDate,
			CreatedBy:    input.Actor,
		}); err != nil {
			return err
		}
		ownerID = owner.ID
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return Payment{}, err
	}

	if s.balances != nil {
		s.balances.InvalidateBalance(ctx, ownerID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor,
			Action:   "billing.payment",
			Entity:   "payment",
			EntityID: fmt.Sprintf("%d", payment.ID),
			Meta: map[string]any{
				"invoice_id": input.InvoiceID,
				"amount":     input.Amount.String(),
				"method":     input.Method,
			},
			At: s.now(),
		})
	}
	return payment, nil
}

// DeleteInvoice reverses an invoice: the owner's balance is credited by the
// original grand total and the invoice row is removed. Billed line items and
// payments cascade away; the source charges stay consumed. When payments
// were already applied against the invoice, the credit intentionally uses
// the grand total rather than the remaining balance due, matching the
// historical reversal behavior.
func (s *Service) DeleteInvoice(ctx context.Context, input DeleteInvoiceInput) (Invoice, error) {
	if err := input.Validate(); err != nil {
		return Invoice{}, err
	}

	var reversed Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return billingshared.ErrInvoiceNotFound
		}
		owner, err := tx.GetOwnerForUpdate(ctx, inv.OwnerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("%w: owner %d", billingshared.ErrOwnerNotFound, inv.OwnerID)
		}

		reversal := inv.GrandTotal
		newBalance := owner.Balance.Sub(reversal)
		if err := tx.UpdateOwnerBalance(ctx, owner.ID, newBalance); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, ledger.Entry{
			OwnerID:      owner.ID,
			Description:  fmt.Sprintf("Reversal of invoice %s", inv.DisplayNumber()),
			AmountChange: reversal.Neg(),
			NewBalance:   newBalance,
			EntryDate:    s.now(),
			CreatedBy:    input.Actor,
		}); err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, inv.ID); err != nil {
			return err
		}
		reversed = *inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if s.balances != nil {
		s.balances.InvalidateBalance(ctx, reversed.OwnerID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor,
			Action:   "billing.reverse",
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", input.InvoiceID),
			Meta: map[string]any{
				"display_number": reversed.DisplayNumber(),
				"grand_total":    reversed.GrandTotal.String(),
			},
			At: s.now(),
		})
	}
	return reversed, nil
}

// GetInvoice returns one invoice with its billed line items and payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, []charges.Charge, []Payment, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	if inv == nil {
		return Invoice{}, nil, nil, billingshared.ErrInvoiceNotFound
	}
	lines, err := s.repo.ListLineItems(ctx, id)
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return Invoice{}, nil, nil, err
	}
	return *inv, lines, payments, nil
}

// ListInvoicesForOwner returns an owner's invoices, newest first.
func (s *Service) ListInvoicesForOwner(ctx context.Context, ownerID int64) ([]Invoice, error) {
	return s.repo.ListInvoicesForOwner(ctx, ownerID)
}
