package covatax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

func TestItemsTaxPostsLineItems(t *testing.T) {
	var got taxRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/taxes" {
			t.Errorf("path = %q, want /taxes", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(taxResponse{TotalTaxAmount: 423})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	discounted := int64(900)
	items := []domain.CartLineItem{
		{ProductID: "p1", UnitPrice: 1000, DiscountedUnitPrice: &discounted, Quantity: 2, Classification: "flower", ThcGrams: 3.5},
		{ProductID: "p2", UnitPrice: 350, Quantity: 1, IsBeverage: true},
	}

	tax, err := client.ItemsTax(context.Background(), items)
	if err != nil {
		t.Fatalf("ItemsTax: %v", err)
	}
	if tax != 423 {
		t.Errorf("tax = %d, want 423", tax)
	}
	if len(got.Items) != 2 {
		t.Fatalf("request items = %d, want 2", len(got.Items))
	}
	if got.Items[0].UnitPrice != 900 {
		t.Errorf("discounted unit price = %d, want 900", got.Items[0].UnitPrice)
	}
	if got.Items[0].ThcGrams != 3.5 {
		t.Errorf("thcGrams = %v, want 3.5", got.Items[0].ThcGrams)
	}
}

func TestItemsTaxServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.ItemsTax(context.Background(), []domain.CartLineItem{{ProductID: "p1", UnitPrice: 100, Quantity: 1}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestItemsTaxNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.ItemsTax(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
