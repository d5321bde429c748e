package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// DefaultBeverageDeposit is the flat per-unit deposit (cents) charged on
// beverage line items in addition to jurisdiction tax.
const DefaultBeverageDeposit int64 = 10

// TaxServiceDeps bundles dependencies required to construct a TaxService.
type TaxServiceDeps struct {
	Client          TaxClient
	BeverageDeposit int64
	Logger          Logger
}

type taxService struct {
	client  TaxClient
	deposit int64
	logger  Logger
}

var _ TaxService = (*taxService)(nil)

// NewTaxService wires a TaxService delegating to the jurisdiction tax client.
func NewTaxService(deps TaxServiceDeps) (TaxService, error) {
	if deps.Client == nil {
		return nil, ErrTaxClientMissing
	}
	deposit := deps.BeverageDeposit
	if deposit <= 0 {
		deposit = DefaultBeverageDeposit
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &taxService{
		client:  deps.Client,
		deposit: deposit,
		logger:  logger,
	}, nil
}

// ItemsTax prices the line items with the jurisdiction tax service. Failures
// propagate; an unresolvable tax amount never silently becomes zero.
func (s *taxService) ItemsTax(ctx context.Context, items []domain.CartLineItem) (int64, error) {
	if s == nil || s.client == nil {
		return 0, ErrTaxClientMissing
	}
	if len(items) == 0 {
		return 0, nil
	}

	started := time.Now()
	amount, err := s.client.ItemsTax(ctx, items)
	if err != nil {
		s.logger(ctx, "tax.items.failed", map[string]any{
			"error":   err.Error(),
			"latency": time.Since(started).String(),
		})
		return 0, fmt.Errorf("%w: %v", ErrTaxUnavailable, err)
	}
	return amount, nil
}

// BeverageDeposit sums the flat per-unit deposit over beverage line items.
func (s *taxService) BeverageDeposit(items []domain.CartLineItem) int64 {
	var total int64
	for _, item := range items {
		if item.IsBeverage {
			total += s.deposit * int64(item.Quantity)
		}
	}
	return total
}

// Aggregate combines the item tax, the shipping tax component and the beverage
// deposit into the order's total tax amount.
func (s *taxService) Aggregate(itemsTax, shippingTax int64, items []domain.CartLineItem) int64 {
	return itemsTax + shippingTax + s.BeverageDeposit(items)
}
