package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderClientPaidOrderCount(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		header    map[string]string
		want      int64
		wantErr   bool
		rateLimit bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"count": 5}`, want: 5},
		{name: "unknown user", status: http.StatusNoContent, want: 0},
		{name: "rate limited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "60"}, wantErr: true, rateLimit: true},
		{name: "rate limited without header", status: http.StatusTooManyRequests, wantErr: true, rateLimit: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
		{name: "bad body", status: http.StatusOK, body: `{"count":`, wantErr: true},
		{name: "negative", status: http.StatusOK, body: `{"count": -1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/users/user%2F1/orders/paid/count", r.URL.EscapedPath())
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewOrderClient(srv.URL).PaidOrderCount(context.Background(), "user/1")
			if tt.wantErr {
				require.Error(t, err)
				if tt.rateLimit {
					require.ErrorIs(t, err, ErrRateLimited)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
