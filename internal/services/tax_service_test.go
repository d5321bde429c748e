package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

type stubTaxClient struct {
	amount int64
	err    error
	calls  int
	last   []domain.CartLineItem
}

func (c *stubTaxClient) ItemsTax(_ context.Context, items []domain.CartLineItem) (int64, error) {
	c.calls++
	c.last = items
	return c.amount, c.err
}

func TestTaxService_ItemsTax_DelegatesToClient(t *testing.T) {
	client := &stubTaxClient{amount: 742}
	svc, err := NewTaxService(TaxServiceDeps{Client: client})
	if err != nil {
		t.Fatalf("NewTaxService: %v", err)
	}

	items := []domain.CartLineItem{{ProductID: "p1", UnitPrice: 3500, Quantity: 2}}
	amount, err := svc.ItemsTax(context.Background(), items)
	if err != nil {
		t.Fatalf("ItemsTax returned error: %v", err)
	}
	if amount != 742 {
		t.Fatalf("expected 742 got %d", amount)
	}
	if client.calls != 1 || len(client.last) != 1 {
		t.Fatalf("client not invoked with items")
	}
}

func TestTaxService_ItemsTax_EmptyCartSkipsNetwork(t *testing.T) {
	client := &stubTaxClient{amount: 100}
	svc, _ := NewTaxService(TaxServiceDeps{Client: client})

	amount, err := svc.ItemsTax(context.Background(), nil)
	if err != nil {
		t.Fatalf("ItemsTax returned error: %v", err)
	}
	if amount != 0 {
		t.Fatalf("expected zero tax for empty cart got %d", amount)
	}
	if client.calls != 0 {
		t.Fatalf("expected no network call for an empty cart")
	}
}

func TestTaxService_ItemsTax_FailureNeverBecomesZero(t *testing.T) {
	client := &stubTaxClient{err: errors.New("boom")}
	svc, _ := NewTaxService(TaxServiceDeps{Client: client})

	_, err := svc.ItemsTax(context.Background(), []domain.CartLineItem{{ProductID: "p1", Quantity: 1}})
	if !errors.Is(err, ErrTaxUnavailable) {
		t.Fatalf("expected ErrTaxUnavailable got %v", err)
	}
}

func TestTaxService_Aggregate_AddsBeverageDeposit(t *testing.T) {
	svc, _ := NewTaxService(TaxServiceDeps{Client: &stubTaxClient{}, BeverageDeposit: 10})

	items := []domain.CartLineItem{
		{ProductID: "flower", Quantity: 2},
		{ProductID: "soda", Quantity: 3, IsBeverage: true},
	}
	if got := svc.BeverageDeposit(items); got != 30 {
		t.Fatalf("expected 30 deposit got %d", got)
	}
	if got := svc.Aggregate(500, 55, items); got != 585 {
		t.Fatalf("expected 585 got %d", got)
	}
}
