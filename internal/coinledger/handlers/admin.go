package handlers

import (
	"net/http"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/go-chi/chi/v5"
)

// ReconcileAll repairs every drifted balance row
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.Reconciler.ReconcileAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drifts)
}

// ReconcileUser repairs one balance row. 204 when it was consistent.
func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Reconciler.Reconcile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if drift == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, drift)
}

// Credit is a manual adjustment by an administrator
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		Amount      int64  `json:"amount"`
		Source      string `json:"source"`
		Description string `json:"description"`
		ReferenceID string `json:"reference_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = models.SourceAdjustment
	}

	t, err := h.Ledger.Credit(r.Context(), req.UserID, req.Amount, req.Source, req.Description, req.ReferenceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
