package covatax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// ErrUnavailable is returned when the tax service cannot produce an answer.
// Callers must surface it; checkout never falls back to a zero tax amount.
var ErrUnavailable = errors.New("covatax: tax service unavailable")

// Logger defines the logging contract for tax client operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the Client.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// Client calls the jurisdiction tax service that prices cannabis line items
// for BC, including excise and potency-based components.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   Logger
}

// NewClient constructs a tax service client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("covatax: endpoint is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     httpClient,
		logger:   logger,
	}, nil
}

// ItemsTax prices the given line items and returns the total tax in cents.
func (c *Client) ItemsTax(ctx context.Context, items []domain.CartLineItem) (int64, error) {
	if c == nil {
		return 0, errors.New("covatax: client is nil")
	}

	reqBody := taxRequest{Items: make([]taxRequestItem, 0, len(items))}
	for _, item := range items {
		reqBody.Items = append(reqBody.Items, taxRequestItem{
			ProductID:      item.ProductID,
			UnitPrice:      item.EffectiveUnitPrice(),
			Quantity:       item.Quantity,
			Classification: item.Classification,
			ThcGrams:       item.ThcGrams,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("covatax: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/taxes", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("covatax: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger(ctx, "covatax.request.failed", map[string]any{"error": err.Error()})
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger(ctx, "covatax.request.rejected", map[string]any{"status": resp.StatusCode})
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body taxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if body.TotalTaxAmount < 0 {
		return 0, fmt.Errorf("%w: negative tax amount %d", ErrUnavailable, body.TotalTaxAmount)
	}

	c.logger(ctx, "covatax.items.priced", map[string]any{
		"items":          len(items),
		"totalTaxAmount": body.TotalTaxAmount,
	})
	return body.TotalTaxAmount, nil
}

type taxRequest struct {
	Items []taxRequestItem `json:"items"`
}

type taxRequestItem struct {
	ProductID      string  `json:"productId"`
	UnitPrice      int64   `json:"unitPrice"`
	Quantity       int     `json:"quantity"`
	Classification string  `json:"classification,omitempty"`
	ThcGrams       float64 `json:"thcGrams,omitempty"`
}

type taxResponse struct {
	TotalTaxAmount int64 `json:"totalTaxAmount"`
}
