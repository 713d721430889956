package handlers

import (
	"net/http"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/go-chi/chi/v5"
)

type advanceResponse struct {
	Status string `json:"status"`
}

// PurchaseCompleted receives payment confirmations from the order system.
// Redelivered events answer 200 with duplicate set.
func (h *Handler) PurchaseCompleted(w http.ResponseWriter, r *http.Request) {
	var ev models.PurchaseEvent
	if err := decodeJSON(r, &ev); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	out, err := h.Purchases.OnPurchaseCompleted(r.Context(), ev)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ProfileCompleted advances the complete_profile quest
func (h *Handler) ProfileCompleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	res, err := h.Registration.OnProfileCompleted(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Status: string(res)})
}

// AdvanceQuest is the generic entry point for event producers. Unknown
// codes are rejected; inactive quests answer quest_not_found.
func (h *Handler) AdvanceQuest(w http.ResponseWriter, r *http.Request) {
	code, err := models.ParseQuestCode(chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		UserID    string `json:"user_id"`
		Increment int64  `json:"increment"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.Increment == 0 {
		req.Increment = 1
	}

	res, err := h.Quests.Advance(r.Context(), req.UserID, code, req.Increment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Status: string(res)})
}
