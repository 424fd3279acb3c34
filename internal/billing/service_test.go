package billing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vetpoint-erp/vetpoint/internal/billing"
	"github.com/vetpoint-erp/vetpoint/internal/billing/charges"
	billingshared "github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/ledger"
	"github.com/vetpoint-erp/vetpoint/internal/ownership"
	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

// memRepo is an in-memory Repository with real rollback semantics: WithTx
// snapshots the state and restores it when the callback fails.
type memRepo struct {
	charges   map[int64]charges.Charge
	owners    map[int64]billing.Owner
	shares    map[int64][]ownership.Share
	invoices  map[int64]billing.Invoice
	lineItems map[int64][]charges.Charge
	payments  map[int64][]billing.Payment
	entries   map[int64][]ledger.Entry

	nextInvoiceID int64
	nextPaymentID int64
	nextLineID    int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		charges:   make(map[int64]charges.Charge),
		owners:    make(map[int64]billing.Owner),
		shares:    make(map[int64][]ownership.Share),
		invoices:  make(map[int64]billing.Invoice),
		lineItems: make(map[int64][]charges.Charge),
		payments:  make(map[int64][]billing.Payment),
		entries:   make(map[int64][]ledger.Entry),
	}
}

func (r *memRepo) snapshot() *memRepo {
	c := newMemRepo()
	for k, v := range r.charges {
		c.charges[k] = v
	}
	for k, v := range r.owners {
		c.owners[k] = v
	}
	for k, v := range r.shares {
		c.shares[k] = append([]ownership.Share(nil), v...)
	}
	for k, v := range r.invoices {
		c.invoices[k] = v
	}
	for k, v := range r.lineItems {
		c.lineItems[k] = append([]charges.Charge(nil), v...)
	}
	for k, v := range r.payments {
		c.payments[k] = append([]billing.Payment(nil), v...)
	}
	for k, v := range r.entries {
		c.entries[k] = append([]ledger.Entry(nil), v...)
	}
	c.nextInvoiceID = r.nextInvoiceID
	c.nextPaymentID = r.nextPaymentID
	c.nextLineID = r.nextLineID
	return c
}

func (r *memRepo) restore(from *memRepo) {
	*r = *from
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx billing.TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, (*memTx)(r)); err != nil {
		r.restore(saved)
		return err
	}
	return nil
}

func (r *memRepo) GetInvoice(_ context.Context, id int64) (*billing.Invoice, error) {
	if inv, ok := r.invoices[id]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (r *memRepo) ListInvoicesForOwner(_ context.Context, ownerID int64) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range r.invoices {
		if inv.OwnerID == ownerID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memRepo) ListLineItems(_ context.Context, invoiceID int64) ([]charges.Charge, error) {
	return append([]charges.Charge(nil), r.lineItems[invoiceID]...), nil
}

func (r *memRepo) ListPayments(_ context.Context, invoiceID int64) ([]billing.Payment, error) {
	return append([]billing.Payment(nil), r.payments[invoiceID]...), nil
}

type memTx memRepo

func (t *memTx) GetChargesForUpdate(_ context.Context, ids []int64) ([]charges.Charge, error) {
	var out []charges.Charge
	for _, id := range ids {
		if c, ok := t.charges[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memTx) ListOwnership(_ context.Context, patientID int64) ([]ownership.Share, error) {
	return append([]ownership.Share(nil), t.shares[patientID]...), nil
}

func (t *memTx) GetOwnerForUpdate(_ context.Context, ownerID int64) (*billing.Owner, error) {
	if o, ok := t.owners[ownerID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (t *memTx) NextMonthlySeq(_ context.Context, ownerID int64, periodYM string) (int, error) {
	max := 0
	for _, inv := range t.invoices {
		if inv.OwnerID == ownerID && inv.PeriodYM == periodYM && inv.MonthlySeq > max {
			max = inv.MonthlySeq
		}
	}
	return max + 1, nil
}

func (t *memTx) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	t.nextInvoiceID++
	inv.ID = t.nextInvoiceID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	t.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memTx) InsertLineItem(_ context.Context, item charges.Charge) error {
	t.nextLineID++
	item.ID = t.nextLineID
	t.lineItems[*item.InvoiceID] = append(t.lineItems[*item.InvoiceID], item)
	return nil
}

func (t *memTx) MarkChargesConsumed(_ context.Context, ids []int64) error {
	for _, id := range ids {
		c, ok := t.charges[id]
		if !ok || !c.Billable() {
			return billingshared.ErrChargeNotEligible
		}
	}
	for _, id := range ids {
		c := t.charges[id]
		c.Status = charges.StatusConsumed
		t.charges[id] = c
	}
	return nil
}

func (t *memTx) GetInvoiceForUpdate(_ context.Context, id int64) (*billing.Invoice, error) {
	if inv, ok := t.invoices[id]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (t *memTx) InsertPayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	t.nextPaymentID++
	p.ID = t.nextPaymentID
	p.CreatedAt = time.Now()
	t.payments[p.InvoiceID] = append(t.payments[p.InvoiceID], p)
	return p, nil
}

func (t *memTx) UpdateInvoicePayment(_ context.Context, inv billing.Invoice) error {
	if _, ok := t.invoices[inv.ID]; !ok {
		return billingshared.ErrInvoiceNotFound
	}
	t.invoices[inv.ID] = inv
	return nil
}

func (t *memTx) DeleteInvoice(_ context.Context, id int64) error {
	if _, ok := t.invoices[id]; !ok {
		return billingshared.ErrInvoiceNotFound
	}
	delete(t.invoices, id)
	delete(t.lineItems, id)
	delete(t.payments, id)
	return nil
}

func (t *memTx) UpdateOwnerBalance(_ context.Context, ownerID int64, balance decimal.Decimal) error {
	o, ok := t.owners[ownerID]
	if !ok {
		return billingshared.ErrOwnerNotFound
	}
	o.Balance = balance
	t.owners[ownerID] = o
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, entry ledger.Entry) error {
	t.entries[entry.OwnerID] = append(t.entries[entry.OwnerID], entry)
	return nil
}

type memIdem struct {
	keys map[string]struct{}
}

func newMemIdem() *memIdem { return &memIdem{keys: make(map[string]struct{})} }

func (m *memIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memIdem) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func addOwner(r *memRepo, id int64, account string, balance string) {
	r.owners[id] = billing.Owner{ID: id, AccountNumber: account, Name: fmt.Sprintf("Owner %d", id), Balance: dec(balance)}
}

func addCharge(r *memRepo, id, patientID, ownerID int64, total string) {
	r.charges[id] = charges.Charge{
		ID:           id,
		PatientID:    patientID,
		OwnerID:      ownerID,
		ChargeCodeID: 1,
		Date:         time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		Description:  fmt.Sprintf("Service %d", id),
		Quantity:     dec("1"),
		UnitPrice:    dec(total),
		TotalPrice:   dec(total),
		Status:       charges.StatusEligible,
	}
}

func addShare(r *memRepo, patientID, ownerID int64, pct string) {
	r.shares[patientID] = append(r.shares[patientID], ownership.Share{PatientID: patientID, OwnerID: ownerID, Percentage: dec(pct)})
}

func ledgerSum(r *memRepo, ownerID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range r.entries[ownerID] {
		sum = sum.Add(e.AmountChange)
	}
	return sum
}

func newEngine(r *memRepo) *billing.Service {
	svc := billing.NewService(r, nil, newMemIdem(), nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestGenerateSplitsAcrossFractionalOwners(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "ACCX", "0")
	addOwner(repo, 2, "ACCY", "0")
	addShare(repo, 10, 1, "60")
	addShare(repo, 10, 2, "40")
	addCharge(repo, 100, 10, 1, "100.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	require.True(t, result.Ok)
	require.Len(t, result.Invoices, 2)
	require.Empty(t, result.SkippedPatients)

	byOwner := map[int64]billing.Invoice{}
	for _, inv := range result.Invoices {
		byOwner[inv.OwnerID] = inv
	}
	requireDecimal(t, "60.00", byOwner[1].GrandTotal)
	requireDecimal(t, "40.00", byOwner[2].GrandTotal)
	requireDecimal(t, "60.00", repo.owners[1].Balance)
	requireDecimal(t, "40.00", repo.owners[2].Balance)
	require.Equal(t, charges.StatusConsumed, repo.charges[100].Status)

	// one ledger entry per invoice, snapshot matches new balance
	require.Len(t, repo.entries[1], 1)
	require.Len(t, repo.entries[2], 1)
	requireDecimal(t, "60.00", repo.entries[1][0].AmountChange)
	requireDecimal(t, "60.00", repo.entries[1][0].NewBalance)
}

func TestGenerateInvoiceTotalsMatchLineItems(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "ACC1", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "19.99")
	addCharge(repo, 101, 10, 1, "5.50")
	addCharge(repo, 102, 10, 1, "120.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100, 101, 102}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)

	inv := result.Invoices[0]
	lines := repo.lineItems[inv.ID]
	require.Len(t, lines, 3)
	sum := decimal.Zero
	for _, line := range lines {
		require.Equal(t, charges.StatusBilled, line.Status)
		sum = sum.Add(line.TotalPrice)
	}
	require.True(t, sum.Equal(inv.GrandTotal))
	require.True(t, inv.GrandTotal.Equal(inv.BalanceDue))
	require.True(t, inv.Subtotal.Equal(inv.GrandTotal))
	require.True(t, inv.TaxTotal.IsZero())
	require.Equal(t, billing.InvoiceStatusUnpaid, inv.Status)
}

func TestGenerateProrationDriftBounded(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addOwner(repo, 2, "B", "0")
	addOwner(repo, 3, "C", "0")
	addShare(repo, 10, 1, "33.33")
	addShare(repo, 10, 2, "33.33")
	addShare(repo, 10, 3, "33.34")
	addCharge(repo, 100, 10, 1, "99.99")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 3)

	sum := decimal.Zero
	for _, inv := range result.Invoices {
		sum = sum.Add(inv.GrandTotal)
	}
	drift := sum.Sub(dec("99.99")).Abs()
	require.True(t, drift.LessThanOrEqual(dec("0.03")), "drift %s exceeds 3 cents", drift)
}

func TestGenerateAppendsShareSuffixForMultipleOwners(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addOwner(repo, 2, "B", "0")
	addShare(repo, 10, 1, "75")
	addShare(repo, 10, 2, "25")
	addCharge(repo, 100, 10, 1, "80.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)

	var descs []string
	for _, inv := range result.Invoices {
		for _, line := range repo.lineItems[inv.ID] {
			descs = append(descs, line.Description)
		}
	}
	require.Contains(t, descs, "Service 100 (75.00% Share)")
	require.Contains(t, descs, "Service 100 (25.00% Share)")
}

func TestGenerateSingleOwnerKeepsDescription(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "80.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	require.Equal(t, "Service 100", repo.lineItems[result.Invoices[0].ID][0].Description)
}

func TestGenerateDeduplicatesDirectoryRows(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "50.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	requireDecimal(t, "50.00", repo.owners[1].Balance)
}

func TestGenerateRejectsConsumedChargeWithZeroSideEffects(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "50.00")
	addCharge(repo, 101, 10, 1, "25.00")
	consumed := repo.charges[101]
	consumed.Status = charges.StatusConsumed
	repo.charges[101] = consumed

	svc := newEngine(repo)
	_, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100, 101}, Actor: "drsmith"})
	require.ErrorIs(t, err, billingshared.ErrChargeNotEligible)

	require.Equal(t, charges.StatusEligible, repo.charges[100].Status)
	require.Empty(t, repo.invoices)
	require.Empty(t, repo.entries[1])
	requireDecimal(t, "0", repo.owners[1].Balance)
}

func TestGenerateRejectsMissingCharge(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "50.00")

	svc := newEngine(repo)
	_, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100, 999}, Actor: "drsmith"})
	require.ErrorIs(t, err, billingshared.ErrChargeNotFound)
	require.Equal(t, charges.StatusEligible, repo.charges[100].Status)
}

func TestGenerateEmptySelection(t *testing.T) {
	svc := newEngine(newMemRepo())
	_, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{Actor: "drsmith"})
	require.ErrorIs(t, err, billingshared.ErrNoChargesSelected)
}

func TestGenerateOwnerlessPatientConsumesWithoutInvoice(t *testing.T) {
	repo := newMemRepo()
	addCharge(repo, 100, 10, 0, "50.00")

	svc := newEngine(repo)
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	require.True(t, result.Ok)
	require.Empty(t, result.Invoices)
	require.Equal(t, []int64{10}, result.SkippedPatients)
	// Observed behavior: the charge is consumed even though no invoice was
	// produced; the skipped list is how callers find out.
	require.Equal(t, charges.StatusConsumed, repo.charges[100].Status)
}

func TestGenerateSequenceAndDisplayNumber(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "ACC9", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "10.00")
	addCharge(repo, 101, 10, 1, "20.00")

	svc := newEngine(repo)
	first, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.NoError(t, err)
	second, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{101}, Actor: "drsmith"})
	require.NoError(t, err)

	require.Equal(t, "2608", first.Invoices[0].PeriodYM)
	require.Equal(t, 1, first.Invoices[0].MonthlySeq)
	require.Equal(t, 2, second.Invoices[0].MonthlySeq)
	require.Equal(t, "ACC9-2608-1", first.Invoices[0].DisplayNumber())
	require.Equal(t, "ACC9-2608-2", second.Invoices[0].DisplayNumber())
	require.NotEqual(t, first.BatchID, second.BatchID)
}

func generateOne(t *testing.T, svc *billing.Service, chargeID int64) billing.Invoice {
	t.Helper()
	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{chargeID}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	return result.Invoices[0]
}

func TestRecordPaymentFullySettlesInvoice(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	payment, err := svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("60.00"),
		Method:    "Check",
		Reference: "1042",
		Actor:     "frontdesk",
	})
	require.NoError(t, err)
	requireDecimal(t, "60.00", payment.Amount)

	updated := repo.invoices[inv.ID]
	require.Equal(t, billing.InvoiceStatusPaid, updated.Status)
	require.True(t, updated.BalanceDue.IsZero())
	requireDecimal(t, "60.00", updated.AmountPaid)
	requireDecimal(t, "0", repo.owners[1].Balance)
	require.Len(t, repo.payments[inv.ID], 1)
	require.Len(t, repo.entries[1], 2) // invoice entry + payment entry
	requireDecimal(t, "-60.00", repo.entries[1][1].AmountChange)
}

func TestRecordPaymentPartialKeepsInvoiceUnpaid(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	_, err := svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("25.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.NoError(t, err)

	updated := repo.invoices[inv.ID]
	require.Equal(t, billing.InvoiceStatusUnpaid, updated.Status)
	requireDecimal(t, "35.00", updated.BalanceDue)
	requireDecimal(t, "35.00", repo.owners[1].Balance)
}

func TestRecordPaymentBounds(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	_, err := svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("0"), Method: "Cash", Actor: "frontdesk",
	})
	require.ErrorIs(t, err, billingshared.ErrAmountNotPositive)

	_, err = svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("-5.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.ErrorIs(t, err, billingshared.ErrAmountNotPositive)

	_, err = svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("60.01"), Method: "Cash", Actor: "frontdesk",
	})
	require.ErrorIs(t, err, billingshared.ErrAmountExceedsBalance)

	// nothing changed
	requireDecimal(t, "60.00", repo.invoices[inv.ID].BalanceDue)
	requireDecimal(t, "60.00", repo.owners[1].Balance)
	require.Empty(t, repo.payments[inv.ID])
}

func TestRecordPaymentRejectsPaidInvoiceAndMissingInvoice(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	_, err := svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("60.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("1.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.ErrorIs(t, err, billingshared.ErrInvoicePaid)

	_, err = svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: 999, Amount: dec("1.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.ErrorIs(t, err, billingshared.ErrInvoiceNotFound)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	input := billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("20.00"), Method: "Cash", Actor: "frontdesk",
		IdempotencyKey: "pay-abc",
	}
	_, err := svc.RecordPayment(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.payments[inv.ID], 1)
	requireDecimal(t, "40.00", repo.invoices[inv.ID].BalanceDue)
}

func TestDeleteInvoiceReversesBalanceAndKeepsChargesConsumed(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	reversed, err := svc.DeleteInvoice(context.Background(), billing.DeleteInvoiceInput{InvoiceID: inv.ID, Actor: "drsmith"})
	require.NoError(t, err)
	requireDecimal(t, "60.00", reversed.GrandTotal)

	requireDecimal(t, "0", repo.owners[1].Balance)
	require.NotContains(t, repo.invoices, inv.ID)
	require.Empty(t, repo.lineItems[inv.ID])
	require.Equal(t, charges.StatusConsumed, repo.charges[100].Status)
	require.Len(t, repo.entries[1], 2)
	requireDecimal(t, "-60.00", repo.entries[1][1].AmountChange)
}

func TestDeleteInvoiceAfterPaymentUsesOriginalGrandTotal(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	_, err := svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: inv.ID, Amount: dec("20.00"), Method: "Cash", Actor: "frontdesk",
	})
	require.NoError(t, err)

	_, err = svc.DeleteInvoice(context.Background(), billing.DeleteInvoiceInput{InvoiceID: inv.ID, Actor: "drsmith"})
	require.NoError(t, err)

	// Reversal credits the full grand total even though $20 was already
	// paid, so the balance goes negative. Historical behavior, surfaced by
	// this test rather than silently changed.
	requireDecimal(t, "-20.00", repo.owners[1].Balance)
}

func TestDeleteInvoiceNotFound(t *testing.T) {
	svc := newEngine(newMemRepo())
	_, err := svc.DeleteInvoice(context.Background(), billing.DeleteInvoiceInput{InvoiceID: 999, Actor: "drsmith"})
	require.ErrorIs(t, err, billingshared.ErrInvoiceNotFound)
}

func TestBalanceConservationAcrossOperations(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addOwner(repo, 2, "B", "0")
	addShare(repo, 10, 1, "70")
	addShare(repo, 10, 2, "30")
	addShare(repo, 11, 1, "100")
	addCharge(repo, 100, 10, 1, "123.45")
	addCharge(repo, 101, 11, 1, "40.00")
	svc := newEngine(repo)

	result, err := svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100, 101}, Actor: "drsmith"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 3)

	for _, ownerID := range []int64{1, 2} {
		require.True(t, repo.owners[ownerID].Balance.Equal(ledgerSum(repo, ownerID)),
			"owner %d: balance %s != ledger sum %s", ownerID, repo.owners[ownerID].Balance, ledgerSum(repo, ownerID))
	}

	var invForOwner1 billing.Invoice
	for _, inv := range result.Invoices {
		if inv.OwnerID == 1 && inv.PatientID == 11 {
			invForOwner1 = inv
		}
	}
	_, err = svc.RecordPayment(context.Background(), billing.RecordPaymentInput{
		InvoiceID: invForOwner1.ID, Amount: dec("15.00"), Method: "Card", Actor: "frontdesk",
	})
	require.NoError(t, err)
	require.True(t, repo.owners[1].Balance.Equal(ledgerSum(repo, 1)))

	_, err = svc.DeleteInvoice(context.Background(), billing.DeleteInvoiceInput{InvoiceID: invForOwner1.ID, Actor: "drsmith"})
	require.NoError(t, err)
	require.True(t, repo.owners[1].Balance.Equal(ledgerSum(repo, 1)))
	require.True(t, repo.owners[2].Balance.Equal(ledgerSum(repo, 2)))
}

func TestConsumedChargeNeverRebilled(t *testing.T) {
	repo := newMemRepo()
	addOwner(repo, 1, "A", "0")
	addShare(repo, 10, 1, "100")
	addCharge(repo, 100, 10, 1, "60.00")
	svc := newEngine(repo)
	inv := generateOne(t, svc, 100)

	_, err := svc.DeleteInvoice(context.Background(), billing.DeleteInvoiceInput{InvoiceID: inv.ID, Actor: "drsmith"})
	require.NoError(t, err)

	_, err = svc.GenerateInvoices(context.Background(), billing.GenerateInvoicesInput{ChargeIDs: []int64{100}, Actor: "drsmith"})
	require.ErrorIs(t, err, billingshared.ErrChargeNotEligible)
}
