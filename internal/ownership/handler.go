package ownership

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vetpoint-erp/vetpoint/internal/platform/httpx"
)

// Handler exposes the patient ownership directory.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/patients/{id}/owners", h.listForPatient)
}

func (h *Handler) listForPatient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid patient id")
		return
	}
	shares, err := h.repo.ListForPatient(r.Context(), id)
	if err != nil {
		h.logger.Error("ownership lookup failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	shares = Dedupe(shares)
	out := make([]map[string]any, 0, len(shares))
	for _, s := range shares {
		out = append(out, map[string]any{
			"owner_id":   s.OwnerID,
			"percentage": s.Percentage,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"patient_id": id, "owners": out})
}
