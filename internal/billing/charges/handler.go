package charges

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	billingshared "github.com/vetpoint-erp/vetpoint/internal/billing/shared"
	"github.com/vetpoint-erp/vetpoint/internal/platform/httpx"
	"github.com/vetpoint-erp/vetpoint/internal/shared"
)

// Handler exposes charge ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers charge routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/charges/batch", h.addBatch)
	r.Get("/charges/{id}", h.getCharge)
	r.Put("/charges/{id}", h.updateCharge)
	r.Delete("/charges/{id}", h.deleteCharge)
	r.Get("/patients/{id}/charges", h.listForPatient)
}

func (h *Handler) addBatch(w http.ResponseWriter, r *http.Request) {
	var input AddChargeBatchInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	created, err := h.service.AddChargeBatch(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"charges": created})
}

func (h *Handler) getCharge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid charge id")
		return
	}
	charge, err := h.service.GetCharge(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, charge)
}

func (h *Handler) updateCharge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid charge id")
		return
	}
	var input UpdateChargeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	input.ChargeID = id
	updated, err := h.service.UpdateCharge(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteCharge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid charge id")
		return
	}
	if err := h.service.DeleteCharge(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) listForPatient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid patient id")
		return
	}
	filter := StateFilter(r.URL.Query().Get("state"))
	switch filter {
	case FilterAll, FilterEligible, FilterBilled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "state must be eligible, billed, or empty")
		return
	}
	list, err := h.service.ListForPatient(r.Context(), id, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"charges": list})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billingshared.ErrChargeNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, billingshared.ErrChargeNotEligible), errors.Is(err, billingshared.ErrChargeInvoiced):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrActorRequired), errors.Is(err, billingshared.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("charges request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
