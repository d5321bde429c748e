package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type fakePaymentMethodAPI struct {
	pm  *stripe.PaymentMethod
	err error
	got string
}

func (f *fakePaymentMethodAPI) Get(id string, _ *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.got = id
	return f.pm, f.err
}

func TestNewStripePaymentMethodVerifierRequiresKey(t *testing.T) {
	if _, err := NewStripePaymentMethodVerifier(StripeConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestLookupReturnsCardDetails(t *testing.T) {
	api := &fakePaymentMethodAPI{
		pm: &stripe.PaymentMethod{
			ID:   "pm_123",
			Type: stripe.PaymentMethodTypeCard,
			Card: &stripe.PaymentMethodCard{
				Brand:    stripe.PaymentMethodCardBrandVisa,
				Last4:    "4242",
				ExpMonth: 12,
				ExpYear:  2027,
			},
		},
	}
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{API: api})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}

	details, err := verifier.Lookup(context.Background(), " pm_123 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if api.got != "pm_123" {
		t.Errorf("requested token = %q, want pm_123", api.got)
	}
	if details.Brand != "visa" || details.Last4 != "4242" {
		t.Errorf("unexpected details %#v", details)
	}
	if details.ExpMonth != 12 || details.ExpYear != 2027 {
		t.Errorf("unexpected expiry %d/%d", details.ExpMonth, details.ExpYear)
	}
}

func TestLookupPropagatesError(t *testing.T) {
	wantErr := errors.New("no such payment_method")
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{API: &fakePaymentMethodAPI{err: wantErr}})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}

	if _, err := verifier.Lookup(context.Background(), "pm_missing"); !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestLookupRejectsEmptyToken(t *testing.T) {
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{API: &fakePaymentMethodAPI{}})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}
	if _, err := verifier.Lookup(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}
