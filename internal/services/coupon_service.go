package services

import (
	"context"
	"strings"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

// CouponServiceDeps bundles dependencies required to construct a CouponService.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Logger  Logger
}

type couponService struct {
	repo   repositories.CouponRepository
	logger Logger
}

var _ CouponService = (*couponService)(nil)

// NewCouponService wires a CouponService backed by the coupon catalog.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, ErrCouponRepositoryMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		repo:   deps.Coupons,
		logger: logger,
	}, nil
}

// Validate matches the code against the active catalog case-insensitively and
// rejects codes already present in the customer's redemption history.
func (s *couponService) Validate(ctx context.Context, code string, customer *domain.Customer) (domain.Coupon, error) {
	if s == nil || s.repo == nil {
		return domain.Coupon{}, ErrCouponRepositoryMissing
	}

	normalized := strings.ToLower(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Coupon{}, ErrCouponInvalidCode
	}

	catalog, err := s.repo.ListActive(ctx)
	if err != nil {
		return domain.Coupon{}, err
	}

	var match *domain.Coupon
	for i := range catalog {
		if strings.ToLower(strings.TrimSpace(catalog[i].Code)) == normalized {
			match = &catalog[i]
			break
		}
	}
	if match == nil {
		return domain.Coupon{}, ErrCouponInvalidCode
	}

	if customer != nil {
		for _, used := range customer.UsedCoupons() {
			if used == normalized {
				s.logger(ctx, "coupon.already.used", map[string]any{"code": normalized})
				return domain.Coupon{}, ErrCouponAlreadyUsed
			}
		}
	}
	return *match, nil
}

// Apply distributes the coupon across the line items in catalog order.
// Earlier discounts are discarded first; at most one coupon is active. A
// line's discount is capped at its own total and the unapplied remainder
// carries forward to the next line.
func (s *couponService) Apply(coupon domain.Coupon, items []domain.CartLineItem) ([]domain.CartLineItem, int64) {
	out := make([]domain.CartLineItem, len(items))
	copy(out, items)

	var subtotal int64
	for i := range out {
		out[i].DiscountedUnitPrice = nil
		subtotal += out[i].UnitPrice * int64(out[i].Quantity)
	}

	remaining := discountBudget(coupon, subtotal)
	if remaining <= 0 {
		return out, 0
	}

	var applied int64
	for i := range out {
		if remaining <= 0 {
			break
		}
		qty := int64(out[i].Quantity)
		if qty <= 0 || out[i].UnitPrice <= 0 {
			continue
		}
		lineTotal := out[i].UnitPrice * qty
		take := remaining
		if take > lineTotal {
			take = lineTotal
		}
		// Discounted prices stay per-unit integers, so the line absorbs the
		// largest multiple of its quantity not exceeding the budget.
		unit := out[i].UnitPrice - take/qty
		actual := lineTotal - unit*qty
		if actual <= 0 {
			continue
		}
		out[i].DiscountedUnitPrice = &unit
		applied += actual
		remaining -= actual
	}
	return out, applied
}

// discountBudget converts a coupon into a cents budget against the subtotal.
// Percent values are whole points rounded half away from zero; the budget
// never exceeds the subtotal itself.
func discountBudget(coupon domain.Coupon, subtotal int64) int64 {
	var budget int64
	switch coupon.Type {
	case domain.DiscountPercent:
		budget = (subtotal*coupon.Value + 50) / 100
	case domain.DiscountFixed:
		budget = coupon.Value
	default:
		return 0
	}
	if budget > subtotal {
		budget = subtotal
	}
	return budget
}
