package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

type stubCouponRepository struct {
	coupons []domain.Coupon
	err     error
}

func (s *stubCouponRepository) ListActive(_ context.Context) ([]domain.Coupon, error) {
	return s.coupons, s.err
}

func newCouponService(t *testing.T, repo *stubCouponRepository) CouponService {
	t.Helper()
	svc, err := NewCouponService(CouponServiceDeps{Coupons: repo})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	return svc
}

func TestCouponService_Validate_CaseInsensitiveMatch(t *testing.T) {
	repo := &stubCouponRepository{coupons: []domain.Coupon{
		{Code: "SAVE10", Type: domain.DiscountPercent, Value: 10},
	}}
	svc := newCouponService(t, repo)

	coupon, err := svc.Validate(context.Background(), " save10 ", nil)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if coupon.Code != "SAVE10" || coupon.Value != 10 {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
}

func TestCouponService_Validate_InvalidCode(t *testing.T) {
	svc := newCouponService(t, &stubCouponRepository{coupons: []domain.Coupon{{Code: "SAVE10"}}})

	if _, err := svc.Validate(context.Background(), "NOPE", nil); !errors.Is(err, ErrCouponInvalidCode) {
		t.Fatalf("expected ErrCouponInvalidCode got %v", err)
	}
	if _, err := svc.Validate(context.Background(), "  ", nil); !errors.Is(err, ErrCouponInvalidCode) {
		t.Fatalf("expected ErrCouponInvalidCode for blank code got %v", err)
	}
}

func TestCouponService_Validate_AlreadyUsed(t *testing.T) {
	repo := &stubCouponRepository{coupons: []domain.Coupon{
		{Code: "WELCOME", Type: domain.DiscountFixed, Value: 500},
	}}
	svc := newCouponService(t, repo)

	customer := &domain.Customer{ReferralSource: "SAVE10, Welcome"}
	if _, err := svc.Validate(context.Background(), "welcome", customer); !errors.Is(err, ErrCouponAlreadyUsed) {
		t.Fatalf("expected ErrCouponAlreadyUsed got %v", err)
	}

	fresh := &domain.Customer{ReferralSource: "SAVE10"}
	if _, err := svc.Validate(context.Background(), "welcome", fresh); err != nil {
		t.Fatalf("unused coupon rejected: %v", err)
	}
}

func TestCouponService_Apply_RemainderCarry(t *testing.T) {
	svc := newCouponService(t, &stubCouponRepository{})

	items := []domain.CartLineItem{
		{ProductID: "a", UnitPrice: 3000, Quantity: 1},
		{ProductID: "b", UnitPrice: 500, Quantity: 1},
	}
	coupon := domain.Coupon{Code: "BIG", Type: domain.DiscountFixed, Value: 4000}

	discounted, value := svc.Apply(coupon, items)
	if value != 3500 {
		t.Fatalf("expected discount 3500 got %d", value)
	}
	if discounted[0].EffectiveUnitPrice() != 0 {
		t.Fatalf("first line should be driven to zero, got %d", discounted[0].EffectiveUnitPrice())
	}
	if discounted[1].EffectiveUnitPrice() != 0 {
		t.Fatalf("carry should zero the second line, got %d", discounted[1].EffectiveUnitPrice())
	}
	// The originals are never mutated.
	if items[0].DiscountedUnitPrice != nil || items[1].DiscountedUnitPrice != nil {
		t.Fatalf("input items must stay frozen")
	}
}

func TestCouponService_Apply_PercentRounding(t *testing.T) {
	svc := newCouponService(t, &stubCouponRepository{})

	items := []domain.CartLineItem{{ProductID: "a", UnitPrice: 1005, Quantity: 1}}
	coupon := domain.Coupon{Code: "TEN", Type: domain.DiscountPercent, Value: 10}

	discounted, value := svc.Apply(coupon, items)
	// 10% of 1005 is 100.5, rounded half away from zero.
	if value != 101 {
		t.Fatalf("expected discount 101 got %d", value)
	}
	if discounted[0].EffectiveUnitPrice() != 904 {
		t.Fatalf("expected discounted unit price 904 got %d", discounted[0].EffectiveUnitPrice())
	}
}

func TestCouponService_Apply_ReplacesPriorDiscount(t *testing.T) {
	svc := newCouponService(t, &stubCouponRepository{})

	prior := int64(100)
	items := []domain.CartLineItem{{ProductID: "a", UnitPrice: 2000, Quantity: 2, DiscountedUnitPrice: &prior}}
	coupon := domain.Coupon{Code: "FLAT", Type: domain.DiscountFixed, Value: 400}

	discounted, value := svc.Apply(coupon, items)
	if value != 400 {
		t.Fatalf("expected discount 400 got %d", value)
	}
	// The budget applies against catalog prices, not the stale discount.
	if discounted[0].EffectiveUnitPrice() != 1800 {
		t.Fatalf("expected unit price 1800 got %d", discounted[0].EffectiveUnitPrice())
	}
}
