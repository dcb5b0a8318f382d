package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/internal/workflow"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	store  *store.Store
	engine *workflow.Engine
	logger logger.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- SubmitInvoice ---

// SubmitInvoice accepts one extracted invoice and stores it for processing
func (h *Handlers) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	var invoice models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&invoice); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid invoice payload: "+err.Error())
		return
	}

	if err := invoice.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid invoice: "+err.Error())
		return
	}

	if err := h.store.SaveInvoice(r.Context(), &invoice); err != nil {
		h.logger.WithError(err).Error("Failed to save invoice")
		h.writeError(w, http.StatusInternalServerError, "failed to save invoice")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": invoice.ID})
}

// --- ProcessInvoice ---

// ProcessInvoice runs the reconciliation pipeline for one invoice id and
// returns the terminal workflow state. The pipeline never errors out: a
// failed run comes back as a FAILED state routed to manual review.
func (h *Handlers) ProcessInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")
	if invoiceID == "" {
		h.writeError(w, http.StatusBadRequest, "invoice id is required")
		return
	}

	state := h.engine.Process(r.Context(), invoiceID)
	h.writeJSON(w, http.StatusOK, state)
}

// --- GetResult ---

// GetResult returns the most recent workflow result for an invoice
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")

	state, err := h.store.GetResultByInvoice(r.Context(), invoiceID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load workflow result")
		h.writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	if state == nil {
		h.writeError(w, http.StatusNotFound, "no result for invoice "+invoiceID)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// --- ListReviewQueue ---

// ListReviewQueue returns results flagged for manual review
func (h *Handlers) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)

	states, err := h.store.ListResultsRequiringReview(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list review queue")
		h.writeError(w, http.StatusInternalServerError, "failed to list review queue")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(states),
		"results": states,
	})
}

// --- Health ---

// Health reports service liveness
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
