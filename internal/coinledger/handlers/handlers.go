package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/service"
)

// Handler handles all HTTP requests
type Handler struct {
	Ledger       *service.Ledger
	Quests       *service.QuestTracker
	Referrals    *service.ReferralAttributor
	Purchases    *service.PurchaseMilestones
	Registration *service.Registration
	Reconciler   *service.Reconciler
	log          *logger.Logger
}

// NewHandler creates a new handler
func NewHandler(
	ledger *service.Ledger,
	quests *service.QuestTracker,
	referrals *service.ReferralAttributor,
	purchases *service.PurchaseMilestones,
	registration *service.Registration,
	reconciler *service.Reconciler,
	log *logger.Logger,
) *Handler {
	return &Handler{
		Ledger:       ledger,
		Quests:       quests,
		Referrals:    referrals,
		Purchases:    purchases,
		Registration: registration,
		Reconciler:   reconciler,
		log:          log.With("component", "handlers"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Anything unexpected is
// logged and reported as a server error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInsufficientBalance):
		http.Error(w, "Insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, service.ErrRateLimited):
		http.Error(w, "Order system busy, retry later", http.StatusServiceUnavailable)
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
