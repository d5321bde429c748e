package canadapost

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// ErrUnavailable is returned when the rating API cannot produce quotes.
var ErrUnavailable = errors.New("canadapost: rating service unavailable")

const (
	rateContentType = "application/vnd.cpc.ship.rate-v4+xml"
	rateNamespace   = "http://www.canadapost.ca/ws/ship/rate-v4"

	// Parcels lighter than this still rate as 100g; the API rejects zero weight.
	minimumWeightKg = 0.1
)

// Quote is one priced shipping option for a destination.
type Quote struct {
	ServiceCode string
	ServiceName string
	// Price is the base price due in cents before tax.
	Price int64
	// Taxes is the summed GST/PST/HST on the quote in cents.
	Taxes int64
	// Adjustments are fuel surcharges and similar, in cents.
	Adjustments int64
}

// TotalPrice is the base price plus adjustments.
func (q Quote) TotalPrice() int64 {
	return q.Price + q.Adjustments
}

// Logger defines the logging contract for rating operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the Client.
type Config struct {
	Endpoint string
	// Credentials is the "username:password" API key pair issued by Canada Post.
	Credentials      string
	CustomerNumber   string
	OriginPostalCode string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Logger           Logger
}

// Client calls the Canada Post rating API (mailing-scenario in, price-quotes out).
type Client struct {
	endpoint       string
	username       string
	password       string
	customerNumber string
	originPostal   string
	http           *http.Client
	logger         Logger
}

// NewClient constructs a rating client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("canadapost: endpoint is required")
	}
	origin := normalizePostal(cfg.OriginPostalCode)
	if origin == "" {
		return nil, errors.New("canadapost: origin postal code is required")
	}

	username, password := splitCredentials(cfg.Credentials)

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
		endpoint:       endpoint,
		username:       username,
		password:       password,
		customerNumber: strings.TrimSpace(cfg.CustomerNumber),
		originPostal:   origin,
		http:           httpClient,
		logger:         logger,
	}, nil
}

// Rates quotes domestic shipping options for the destination postal code and
// the parcel weight implied by the line items.
func (c *Client) Rates(ctx context.Context, destinationPostal string, items []domain.CartLineItem) ([]Quote, error) {
	if c == nil {
		return nil, errors.New("canadapost: client is nil")
	}
	destination := normalizePostal(destinationPostal)
	if destination == "" {
		return nil, errors.New("canadapost: destination postal code is required")
	}

	scenario := mailingScenario{
		XMLNS:          rateNamespace,
		CustomerNumber: c.customerNumber,
		Parcel:         parcelCharacteristics{WeightKg: parcelWeightKg(items)},
		OriginPostal:   c.originPostal,
		Destination: destinationElement{
			Domestic: domesticElement{PostalCode: destination},
		},
	}

	payload, err := xml.Marshal(scenario)
	if err != nil {
		return nil, fmt.Errorf("canadapost: marshal scenario: %w", err)
	}
	body := append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("canadapost: build request: %w", err)
	}
	req.Header.Set("Content-Type", rateContentType)
	req.Header.Set("Accept", rateContentType)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger(ctx, "canadapost.request.failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger(ctx, "canadapost.request.rejected", map[string]any{"status": resp.StatusCode})
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var quotes priceQuotes
	if err := xml.Unmarshal(raw, &quotes); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	out := make([]Quote, 0, len(quotes.Quotes))
	for _, q := range quotes.Quotes {
		quote := Quote{
			ServiceCode: strings.TrimSpace(q.ServiceCode),
			ServiceName: strings.TrimSpace(q.ServiceName),
			Price:       dollarsToCents(q.PriceDetails.Due),
			Taxes:       dollarsToCents(q.PriceDetails.Taxes.GST) + dollarsToCents(q.PriceDetails.Taxes.PST) + dollarsToCents(q.PriceDetails.Taxes.HST),
		}
		for _, adj := range q.PriceDetails.Adjustments.Adjustments {
			quote.Adjustments += dollarsToCents(adj.Cost)
		}
		out = append(out, quote)
	}

	c.logger(ctx, "canadapost.rates.quoted", map[string]any{
		"destination": destination,
		"quotes":      len(out),
	})
	return out, nil
}

func parcelWeightKg(items []domain.CartLineItem) float64 {
	grams := 0
	for _, item := range items {
		grams += item.WeightGrams * item.Quantity
	}
	kg := float64(grams) / 1000
	if kg < minimumWeightKg {
		kg = minimumWeightKg
	}
	return math.Round(kg*1000) / 1000
}

func dollarsToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func normalizePostal(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

func splitCredentials(creds string) (username, password string) {
	parts := strings.SplitN(strings.TrimSpace(creds), ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return strings.TrimSpace(creds), ""
}

type mailingScenario struct {
	XMLName        xml.Name              `xml:"mailing-scenario"`
	XMLNS          string                `xml:"xmlns,attr"`
	CustomerNumber string                `xml:"customer-number,omitempty"`
	Parcel         parcelCharacteristics `xml:"parcel-characteristics"`
	OriginPostal   string                `xml:"origin-postal-code"`
	Destination    destinationElement    `xml:"destination"`
}

type parcelCharacteristics struct {
	WeightKg float64 `xml:"weight"`
}

type destinationElement struct {
	Domestic domesticElement `xml:"domestic"`
}

type domesticElement struct {
	PostalCode string `xml:"postal-code"`
}

type priceQuotes struct {
	XMLName xml.Name     `xml:"price-quotes"`
	Quotes  []priceQuote `xml:"price-quote"`
}

type priceQuote struct {
	ServiceCode  string       `xml:"service-code"`
	ServiceName  string       `xml:"service-name"`
	PriceDetails priceDetails `xml:"price-details"`
}

type priceDetails struct {
	Due         float64        `xml:"due"`
	Taxes       quoteTaxes     `xml:"taxes"`
	Adjustments adjustmentList `xml:"adjustments"`
}

type quoteTaxes struct {
	GST float64 `xml:"gst"`
	PST float64 `xml:"pst"`
	HST float64 `xml:"hst"`
}

type adjustmentList struct {
	Adjustments []adjustment `xml:"adjustment"`
}

type adjustment struct {
	Code string  `xml:"adjustment-code"`
	Cost float64 `xml:"adjustment-cost"`
}
