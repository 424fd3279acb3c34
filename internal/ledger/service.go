package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

// RepositoryPort defines data access methods for ledger reads.
type RepositoryPort interface {
	History(ctx context.Context, ownerID int64, limit, offset int) ([]Entry, int, error)
	StoredBalance(ctx context.Context, ownerID int64) (decimal.Decimal, error)
	LedgerSum(ctx context.Context, ownerID int64) (decimal.Decimal, error)
	ListOwnerIDs(ctx context.Context) ([]int64, error)
}

// Service answers owner ledger queries and verifies balance conservation.
type Service struct {
	repo  RepositoryPort
	cache *BalanceCache
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache *BalanceCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// History returns one page of an owner's ledger plus pagination metadata.
func (s *Service) History(ctx context.Context, ownerID int64, page, perPage int) ([]Entry, shared.Pagination, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	entries, total, err := s.repo.History(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page, perPage, total), nil
}

// Balance returns the owner's current balance, served from cache when warm.
func (s *Service) Balance(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	if balance, ok := s.cache.Get(ctx, ownerID); ok {
		return balance, nil
	}
	balance, err := s.repo.StoredBalance(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cache.Set(ctx, ownerID, balance)
	return balance, nil
}

// InvalidateBalance drops the cached balance for an owner. The billing
// engine calls this after each committed mutation.
func (s *Service) InvalidateBalance(ctx context.Context, ownerID int64) {
	s.cache.Invalidate(ctx, ownerID)
}

// VerifyOwner recomputes the ledger sum for one owner and compares it to
// the stored balance.
func (s *Service) VerifyOwner(ctx context.Context, ownerID int64) (DriftReport, error) {
	stored, err := s.repo.StoredBalance(ctx, ownerID)
	if err != nil {
		return DriftReport{}, err
	}
	computed, err := s.repo.LedgerSum(ctx, ownerID)
	if err != nil {
		return DriftReport{}, err
	}
	return DriftReport{
		OwnerID:  ownerID,
		Stored:   stored,
		Computed: computed,
		Drift:    stored.Sub(computed),
	}, nil
}

// VerifyAll checks every owner and returns the reports that show drift.
func (s *Service) VerifyAll(ctx context.Context) ([]DriftReport, error) {
	ids, err := s.repo.ListOwnerIDs(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]DriftReport, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			report, err := s.VerifyOwner(ctx, id)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var dirty []DriftReport
	for _, r := range reports {
		if !r.Clean() {
			dirty = append(dirty, r)
		}
	}
	return dirty, nil
}
