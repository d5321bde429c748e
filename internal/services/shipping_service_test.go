package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

type stubRatesClient struct {
	quotes []RateQuote
	err    error
	calls  int
}

func (c *stubRatesClient) Rates(_ context.Context, _ string, _ []domain.CartLineItem) ([]RateQuote, error) {
	c.calls++
	return c.quotes, c.err
}

func newShippingService(t *testing.T, rates *stubRatesClient) ShippingService {
	t.Helper()
	svc, err := NewShippingService(ShippingServiceDeps{Rates: rates})
	if err != nil {
		t.Fatalf("NewShippingService: %v", err)
	}
	return svc
}

func TestShippingService_ValidatePostalCode(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	if err := svc.ValidatePostalCode(domain.MethodSelfPickup, ""); err != nil {
		t.Fatalf("self pickup needs no postal code: %v", err)
	}
	if err := svc.ValidatePostalCode(domain.MethodDelivery, "v2a 5k6"); err != nil {
		t.Fatalf("local prefix rejected: %v", err)
	}
	if err := svc.ValidatePostalCode(domain.MethodDelivery, "V1X 1A1"); !errors.Is(err, ErrInvalidPostalCode) {
		t.Fatalf("expected ErrInvalidPostalCode outside delivery area got %v", err)
	}
	if err := svc.ValidatePostalCode(domain.MethodShipping, "V1X 1A1"); err != nil {
		t.Fatalf("provincial postal code rejected: %v", err)
	}
	if err := svc.ValidatePostalCode(domain.MethodShipping, "M5V 2T6"); !errors.Is(err, ErrInvalidPostalCode) {
		t.Fatalf("expected ErrInvalidPostalCode outside the province got %v", err)
	}
	if err := svc.ValidatePostalCode(domain.MethodShipping, ""); !errors.Is(err, ErrInvalidPostalCode) {
		t.Fatalf("expected ErrInvalidPostalCode for blank code got %v", err)
	}
}

func TestShippingService_ValidateAddress(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	if err := svc.ValidateAddress(domain.MethodSelfPickup, nil); err != nil {
		t.Fatalf("self pickup needs no address: %v", err)
	}
	if err := svc.ValidateAddress(domain.MethodDelivery, nil); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired got %v", err)
	}

	address := &domain.Address{
		FirstName:    "Dana",
		LastName:     "Singh",
		AddressLine1: "123 Main St",
		City:         "Penticton",
		PostalCode:   "V2A 5K6",
	}
	if err := svc.ValidateAddress(domain.MethodDelivery, address); err != nil {
		t.Fatalf("complete address rejected: %v", err)
	}

	missing := *address
	missing.City = "  "
	if err := svc.ValidateAddress(domain.MethodDelivery, &missing); !errors.Is(err, ErrMissingAddressField) {
		t.Fatalf("expected ErrMissingAddressField got %v", err)
	}
}

func TestShippingService_Quotes_PostalGateSkipsNetwork(t *testing.T) {
	rates := &stubRatesClient{}
	svc := newShippingService(t, rates)

	items := []domain.CartLineItem{{ProductID: "p1", Quantity: 1}}
	_, err := svc.Quotes(context.Background(), "M5V 2T6", items)
	if !errors.Is(err, ErrInvalidPostalCode) {
		t.Fatalf("expected ErrInvalidPostalCode got %v", err)
	}
	if rates.calls != 0 {
		t.Fatalf("invalid postal code must never reach the rating API")
	}
}

func TestShippingService_Quotes_EmptyCart(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	if _, err := svc.Quotes(context.Background(), "V1X 1A1", nil); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty got %v", err)
	}
}

func TestShippingService_Quotes_ClientFailure(t *testing.T) {
	rates := &stubRatesClient{err: errors.New("gateway timeout")}
	svc := newShippingService(t, rates)

	items := []domain.CartLineItem{{ProductID: "p1", Quantity: 1}}
	if _, err := svc.Quotes(context.Background(), "V1X 1A1", items); !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable got %v", err)
	}
}

func TestShippingService_Resolve_SelfPickupIsFree(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	resolution, err := svc.Resolve(domain.MethodSelfPickup, nil, 5000)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Price != 0 || resolution.Tax != 0 {
		t.Fatalf("self pickup must be free, got %+v", resolution)
	}
	if resolution.ServiceID != domain.SelfPickupServiceID {
		t.Fatalf("unexpected service id %d", resolution.ServiceID)
	}
}

func TestShippingService_Resolve_FreeShippingThreshold(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	below, err := svc.Resolve(domain.MethodDelivery, nil, 9999)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if below.Price != 400 || below.FreeShipping {
		t.Fatalf("expected paid delivery below threshold, got %+v", below)
	}

	at, err := svc.Resolve(domain.MethodDelivery, nil, 10000)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if at.Price != 0 || !at.FreeShipping {
		t.Fatalf("expected free delivery at threshold, got %+v", at)
	}
	if at.OriginalPrice != 400 {
		t.Fatalf("pre-override price must survive for display, got %d", at.OriginalPrice)
	}
}

func TestShippingService_RemainingForFreeShipping(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	if got := svc.RemainingForFreeShipping(3500); got != 6500 {
		t.Fatalf("expected 6500 remaining, got %d", got)
	}
	if got := svc.RemainingForFreeShipping(10000); got != 0 {
		t.Fatalf("expected 0 remaining at threshold, got %d", got)
	}
	if got := svc.RemainingForFreeShipping(12000); got != 0 {
		t.Fatalf("expected 0 remaining above threshold, got %d", got)
	}
}

func TestShippingService_Resolve_CarrierQuote(t *testing.T) {
	svc := newShippingService(t, &stubRatesClient{})

	if _, err := svc.Resolve(domain.MethodShipping, nil, 5000); !errors.Is(err, ErrQuoteRequired) {
		t.Fatalf("expected ErrQuoteRequired got %v", err)
	}

	quote := &RateQuote{
		ServiceCode: "DOM.RP",
		ServiceName: "Regular Parcel",
		Price:       1152,
		Taxes:       55,
		Adjustments: 103,
	}
	resolution, err := svc.Resolve(domain.MethodShipping, quote, 5000)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Price != 1255 {
		t.Fatalf("expected base plus adjustments 1255 got %d", resolution.Price)
	}
	if resolution.Tax != 55 {
		t.Fatalf("expected quote taxes 55 got %d", resolution.Tax)
	}
	if resolution.ServiceCode != "DOM.RP" {
		t.Fatalf("unexpected service code %q", resolution.ServiceCode)
	}
	if resolution.Title != "Canada Post Regular Parcel" {
		t.Fatalf("unexpected title %q", resolution.Title)
	}

	free, err := svc.Resolve(domain.MethodShipping, quote, 10000)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if free.Price != 0 || free.Tax != 0 || !free.FreeShipping {
		t.Fatalf("free shipping must zero price and tax, got %+v", free)
	}
	if free.OriginalPrice != 1255 {
		t.Fatalf("pre-override price must survive, got %d", free.OriginalPrice)
	}
}
