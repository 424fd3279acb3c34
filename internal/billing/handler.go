package billing

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

// Handler exposes the engine over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers engine routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/generate", h.generateInvoices)
	r.Post("/payments", h.recordPayment)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Delete("/invoices/{id}", h.deleteInvoice)
	r.Get("/owners/{id}/invoices", h.listOwnerInvoices)
}

func (h *Handler) generateInvoices(w http.ResponseWriter, r *http.Request) {
	var input GenerateInvoicesInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	result, err := h.service.GenerateInvoices(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var input RecordPaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, lines, payments, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoice":        inv,
		"display_number": inv.DisplayNumber(),
		"line_items":     lines,
		"payments":       payments,
	})
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		actor = r.URL.Query().Get("actor")
	}
	reversed, err := h.service.DeleteInvoice(r.Context(), DeleteInvoiceInput{InvoiceID: id, Actor: actor})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reversed":       true,
		"invoice_id":     reversed.ID,
		"display_number": reversed.DisplayNumber(),
		"amount":         reversed.GrandTotal,
	})
}

func (h *Handler) listOwnerInvoices(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid owner id")
		return
	}
	invoices, err := h.service.ListInvoicesForOwner(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billingshared.ErrChargeNotFound),
		errors.Is(err, billingshared.ErrInvoiceNotFound),
		errors.Is(err, billingshared.ErrOwnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, billingshared.ErrChargeNotEligible),
		errors.Is(err, billingshared.ErrChargeInvoiced),
		errors.Is(err, billingshared.ErrInvoicePaid),
		errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, billingshared.ErrNoChargesSelected),
		errors.Is(err, billingshared.ErrAmountNotPositive),
		errors.Is(err, billingshared.ErrAmountExceedsBalance),
		errors.Is(err, billingshared.ErrInvalidInput),
		errors.Is(err, shared.ErrActorRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("billing request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
