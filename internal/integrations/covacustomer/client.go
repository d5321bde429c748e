package covacustomer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// ErrUnavailable is returned when the customer lookup cannot be served.
var ErrUnavailable = errors.New("covacustomer: customer service unavailable")

// ErrNotFound is returned when no customer record matches the email. First
// time buyers have no usage history, so callers treat this as an empty record.
var ErrNotFound = errors.New("covacustomer: customer not found")

// Logger defines the logging contract for customer lookups.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the Client.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// Client reads customer records from the POS. The ReferralSource field of the
// record carries the customer's previously used coupon codes as a
// comma-separated list.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   Logger
}

// NewClient constructs a customer lookup client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("covacustomer: endpoint is required")
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

// FindByEmail looks up the customer record for the address.
func (c *Client) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if c == nil {
		return domain.Customer{}, errors.New("covacustomer: client is nil")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Customer{}, errors.New("covacustomer: email is required")
	}

	endpoint := c.endpoint + "/customers?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("covacustomer: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger(ctx, "covacustomer.request.failed", map[string]any{"error": err.Error()})
		return domain.Customer{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Customer{}, ErrNotFound
	default:
		c.logger(ctx, "covacustomer.request.rejected", map[string]any{"status": resp.StatusCode})
		return domain.Customer{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body customerRecord
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Customer{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return domain.Customer{
		FirstName:      body.FirstName,
		LastName:       body.LastName,
		Email:          body.Email,
		Phone:          body.Phone,
		ReferralSource: body.ReferralSource,
	}, nil
}

type customerRecord struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	ReferralSource string `json:"referralSource"`
}
