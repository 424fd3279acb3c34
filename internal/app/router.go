package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vetpoint-erp/vetpoint/internal/billing"
	"github.com/vetpoint-erp/vetpoint/internal/billing/charges"
	"github.com/vetpoint-erp/vetpoint/internal/ledger"
	"github.com/vetpoint-erp/vetpoint/internal/ownership"
	"github.com/vetpoint-erp/vetpoint/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	BillingHandler   *billing.Handler
	ChargesHandler   *charges.Handler
	LedgerHandler    *ledger.Handler
	OwnershipHandler *ownership.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/billing", func(r chi.Router) {
		params.BillingHandler.MountRoutes(r)
		params.ChargesHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.OwnershipHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
