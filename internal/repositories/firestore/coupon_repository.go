package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

const couponCollection = "coupons"

// CouponRepository reads the coupon catalog from Firestore.
type CouponRepository struct {
	base *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base}, nil
}

// ListActive returns the active coupon catalog in document order.
func (r *CouponRepository) ListActive(ctx context.Context) ([]domain.Coupon, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("coupon repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}

	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		code := strings.TrimSpace(doc.Data.Code)
		if code == "" {
			code = doc.ID
		}
		coupons = append(coupons, domain.Coupon{
			Code:  code,
			Type:  domain.DiscountType(doc.Data.Type),
			Value: doc.Data.Value,
		})
	}
	return coupons, nil
}

type couponDocument struct {
	Code   string `firestore:"code"`
	Type   string `firestore:"type"`
	Value  int64  `firestore:"value"`
	Active bool   `firestore:"active"`
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
