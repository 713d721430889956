package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PaidOrderCounter reports how many paid orders a user has
type PaidOrderCounter interface {
	PaidOrderCount(ctx context.Context, userID string) (int64, error)
}

// OrderClient handles communication with the order system
type OrderClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOrderClient creates a new order system client
func NewOrderClient(baseURL string) *OrderClient {
	return &OrderClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type paidOrderCountResponse struct {
	Count int64 `json:"count"`
}

// PaidOrderCount fetches the authoritative lifetime paid-order count of a user
func (c *OrderClient) PaidOrderCount(ctx context.Context, userID string) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/orders/paid/count", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				return 0, fmt.Errorf("%w, retry after %d seconds", ErrRateLimited, seconds)
			}
		}
		return 0, ErrRateLimited
	}

	// 204: the order system knows nothing about the user
	if resp.StatusCode == http.StatusNoContent {
		return 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("order system returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var out paidOrderCountResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, err
	}
	if out.Count < 0 {
		return 0, fmt.Errorf("order system returned negative count %d", out.Count)
	}
	return out.Count, nil
}
