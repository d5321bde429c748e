package covacustomer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFindByEmailReturnsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "buyer@example.com" {
			t.Errorf("email query = %q", got)
		}
		_, _ = w.Write([]byte(`{"firstName":"Pat","lastName":"Singh","email":"buyer@example.com","referralSource":"WELCOME10, spring5"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	customer, err := client.FindByEmail(context.Background(), " Buyer@Example.com ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if customer.FirstName != "Pat" {
		t.Errorf("FirstName = %q", customer.FirstName)
	}

	used := customer.UsedCoupons()
	if len(used) != 2 || used[0] != "welcome10" || used[1] != "spring5" {
		t.Errorf("UsedCoupons = %v", used)
	}
}

func TestFindByEmailNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.FindByEmail(context.Background(), "new@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByEmailServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.FindByEmail(context.Background(), "buyer@example.com"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
