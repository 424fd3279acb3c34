package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vetpoint-erp/vetpoint/internal/ledger"
)

// BalanceVerifier recomputes ledger sums per owner.
type BalanceVerifier interface {
	VerifyAll(ctx context.Context) ([]ledger.DriftReport, error)
}

// IdempotencyCleaner prunes expired keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewLedgerIntegrityHandler returns the handler for TaskLedgerIntegrity. A
// non-empty drift list means a balance was mutated without its paired ledger
// entry; the job logs each offender so operators can investigate.
func NewLedgerIntegrityHandler(logger *slog.Logger, verifier BalanceVerifier) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		started := time.Now()
		drifts, err := verifier.VerifyAll(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			logger.Error("owner balance drift detected",
				slog.Int64("owner_id", d.OwnerID),
				slog.String("stored", d.Stored.String()),
				slog.String("computed", d.Computed.String()),
				slog.String("drift", d.Drift.String()),
			)
		}
		logger.Info("ledger integrity scan finished",
			slog.Int("dirty_owners", len(drifts)),
			slog.Duration("took", time.Since(started)),
		)
		return nil
	}
}

// idempotency key retention; payments retried later than this re-post.
const idempotencyRetention = 7 * 24 * time.Hour

// NewIdempotencyCleanupHandler returns the handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(logger *slog.Logger, cleaner IdempotencyCleaner) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := cleaner.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency keys pruned", slog.Duration("retention", idempotencyRetention))
		return nil
	}
}
