package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"labflow/internal/platform/config"
	"labflow/pkg/platform/sentinel"
)

//go:generate mockgen -source=client.go -destination=mocks/client_mock.go -package=mocks

// Client talks to the upstream order service.
type Client interface {
	// CreateOrGetOrder resolves the test order registered for a sample
	// barcode, creating one upstream if none exists yet. Returns
	// sentinel.ErrUnavailable when the service cannot be reached.
	CreateOrGetOrder(ctx context.Context, barcode string) (TestOrder, error)
}

// HTTPClient is the production Client backed by the order service's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(cfg config.Orders) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *HTTPClient) CreateOrGetOrder(ctx context.Context, barcode string) (TestOrder, error) {
	body, err := json.Marshal(map[string]string{"barcode": barcode})
	if err != nil {
		return TestOrder{}, fmt.Errorf("encode order request: %w", err)
	}

	endpoint := c.baseURL + "/v1/test-orders:resolve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return TestOrder{}, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return TestOrder{}, fmt.Errorf("order service request: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return TestOrder{}, fmt.Errorf("order service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return TestOrder{}, fmt.Errorf("order service returned unexpected status %d", resp.StatusCode)
	}

	var order TestOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return TestOrder{}, fmt.Errorf("decode order response: %w", err)
	}
	return order, nil
}
