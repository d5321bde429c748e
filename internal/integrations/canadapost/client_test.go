package canadapost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

const rateResponse = `<?xml version="1.0" encoding="UTF-8"?>
<price-quotes xmlns="http://www.canadapost.ca/ws/ship/rate-v4">
  <price-quote>
    <service-code>DOM.RP</service-code>
    <service-name>Regular Parcel</service-name>
    <price-details>
      <due>11.52</due>
      <taxes>
        <gst>0.55</gst>
        <pst>0.00</pst>
        <hst>0.00</hst>
      </taxes>
      <adjustments>
        <adjustment>
          <adjustment-code>FUELSC</adjustment-code>
          <adjustment-cost>1.03</adjustment-cost>
        </adjustment>
      </adjustments>
    </price-details>
  </price-quote>
  <price-quote>
    <service-code>DOM.XP</service-code>
    <service-name>Xpresspost</service-name>
    <price-details>
      <due>18.10</due>
      <taxes>
        <gst>0.91</gst>
        <pst>0.00</pst>
        <hst>0.00</hst>
      </taxes>
      <adjustments/>
    </price-details>
  </price-quote>
</price-quotes>`

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint:         srvURL,
		Credentials:      "user:pass",
		CustomerNumber:   "1234567",
		OriginPostalCode: "V2A 5K6",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestRatesParsesQuotes(t *testing.T) {
	var requestBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != rateContentType {
			t.Errorf("content type = %q", ct)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		raw, _ := io.ReadAll(r.Body)
		requestBody = string(raw)
		_, _ = w.Write([]byte(rateResponse))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	items := []domain.CartLineItem{
		{ProductID: "p1", Quantity: 2, WeightGrams: 350},
		{ProductID: "p2", Quantity: 1, WeightGrams: 500},
	}

	quotes, err := client.Rates(context.Background(), "v8w 1w4", items)
	if err != nil {
		t.Fatalf("Rates: %v", err)
	}

	if !strings.Contains(requestBody, "<origin-postal-code>V2A5K6</origin-postal-code>") {
		t.Errorf("origin missing from scenario: %s", requestBody)
	}
	if !strings.Contains(requestBody, "<postal-code>V8W1W4</postal-code>") {
		t.Errorf("destination missing from scenario: %s", requestBody)
	}
	if !strings.Contains(requestBody, "<weight>1.2</weight>") {
		t.Errorf("weight missing from scenario: %s", requestBody)
	}

	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(quotes))
	}
	regular := quotes[0]
	if regular.ServiceCode != "DOM.RP" || regular.ServiceName != "Regular Parcel" {
		t.Errorf("unexpected first quote %#v", regular)
	}
	if regular.Price != 1152 || regular.Taxes != 55 || regular.Adjustments != 103 {
		t.Errorf("unexpected amounts %#v", regular)
	}
	if regular.TotalPrice() != 1255 {
		t.Errorf("TotalPrice = %d, want 1255", regular.TotalPrice())
	}
	if quotes[1].Adjustments != 0 {
		t.Errorf("xpresspost adjustments = %d, want 0", quotes[1].Adjustments)
	}
}

func TestRatesMinimumParcelWeight(t *testing.T) {
	var requestBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		requestBody = string(raw)
		_, _ = w.Write([]byte(rateResponse))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.Rates(context.Background(), "V8W1W4", nil); err != nil {
		t.Fatalf("Rates: %v", err)
	}
	if !strings.Contains(requestBody, "<weight>0.1</weight>") {
		t.Errorf("expected minimum weight in scenario: %s", requestBody)
	}
}

func TestRatesServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.Rates(context.Background(), "V8W1W4", nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRatesRequiresDestination(t *testing.T) {
	client := newTestClient(t, "http://invalid.example")
	if _, err := client.Rates(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for missing destination")
	}
}
