package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

type memLedgerRepo struct {
	balances map[int64]decimal.Decimal
	entries  map[int64][]Entry
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{
		balances: make(map[int64]decimal.Decimal),
		entries:  make(map[int64][]Entry),
	}
}

func (r *memLedgerRepo) History(_ context.Context, ownerID int64, limit, offset int) ([]Entry, int, error) {
	all := r.entries[ownerID]
	total := len(all)
	// newest first
	reversed := make([]Entry, 0, total)
	for i := total - 1; i >= 0; i-- {
		reversed = append(reversed, all[i])
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return reversed[offset:end], total, nil
}

func (r *memLedgerRepo) StoredBalance(_ context.Context, ownerID int64) (decimal.Decimal, error) {
	balance, ok := r.balances[ownerID]
	if !ok {
		return decimal.Zero, shared.ErrNotFound
	}
	return balance, nil
}

func (r *memLedgerRepo) LedgerSum(_ context.Context, ownerID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range r.entries[ownerID] {
		sum = sum.Add(e.AmountChange)
	}
	return sum, nil
}

func (r *memLedgerRepo) ListOwnerIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id := range r.balances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memLedgerRepo) append(ownerID int64, amount string) {
	change := decimal.RequireFromString(amount)
	balance := r.balances[ownerID].Add(change)
	r.balances[ownerID] = balance
	r.entries[ownerID] = append(r.entries[ownerID], Entry{
		OwnerID:      ownerID,
		AmountChange: change,
		NewBalance:   balance,
		EntryDate:    time.Now(),
	})
}

func TestHistoryPagination(t *testing.T) {
	repo := newMemLedgerRepo()
	repo.balances[1] = decimal.Zero
	for range 5 {
		repo.append(1, "10.00")
	}
	svc := NewService(repo, nil)

	entries, pagination, err := svc.History(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)

	entries, _, err = svc.History(context.Background(), 1, 3, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBalanceMissingOwner(t *testing.T) {
	svc := NewService(newMemLedgerRepo(), nil)
	_, err := svc.Balance(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestVerifyOwnerClean(t *testing.T) {
	repo := newMemLedgerRepo()
	repo.balances[1] = decimal.Zero
	repo.append(1, "60.00")
	repo.append(1, "-25.00")
	svc := NewService(repo, nil)

	report, err := svc.VerifyOwner(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.Clean())
	require.True(t, report.Stored.Equal(decimal.RequireFromString("35.00")))
}

func TestVerifyOwnerDetectsDrift(t *testing.T) {
	repo := newMemLedgerRepo()
	repo.balances[1] = decimal.Zero
	repo.append(1, "60.00")
	// simulate a balance mutation that skipped its ledger entry
	repo.balances[1] = repo.balances[1].Add(decimal.RequireFromString("5.00"))
	svc := NewService(repo, nil)

	report, err := svc.VerifyOwner(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.True(t, report.Drift.Equal(decimal.RequireFromString("5.00")))
}

func TestVerifyAllReturnsOnlyDirtyOwners(t *testing.T) {
	repo := newMemLedgerRepo()
	repo.balances[1] = decimal.Zero
	repo.append(1, "60.00")
	repo.balances[2] = decimal.Zero
	repo.append(2, "40.00")
	repo.balances[2] = repo.balances[2].Sub(decimal.RequireFromString("0.01"))
	svc := NewService(repo, nil)

	dirty, err := svc.VerifyAll(context.Background())
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.Equal(t, int64(2), dirty[0].OwnerID)
	require.True(t, dirty[0].Drift.Equal(decimal.RequireFromString("-0.01")))
}
