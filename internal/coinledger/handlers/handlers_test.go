package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/service"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorStatus(t *testing.T) {
	h := &Handler{log: logger.Nop()}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: fmt.Errorf("%w: amount", service.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "insufficient", err: fmt.Errorf("debit: %w", service.ErrInsufficientBalance), want: http.StatusPaymentRequired},
		{name: "not found", err: service.ErrNotFound, want: http.StatusNotFound},
		{name: "rate limited", err: fmt.Errorf("%w, retry after 5 seconds", service.ErrRateLimited), want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandlersRequireIdentity(t *testing.T) {
	h := &Handler{log: logger.Nop()}
	for name, fn := range map[string]http.HandlerFunc{
		"register":  h.Register,
		"balance":   h.GetBalance,
		"history":   h.GetHistory,
		"redeem":    h.Redeem,
		"quests":    h.GetQuests,
		"referrals": h.GetReferrals,
	} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}
