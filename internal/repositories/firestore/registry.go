package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	snapshots *SnapshotRepository
	carts     *CartRepository
	coupons   *CouponRepository
	schedules *ScheduleRepository
	health    repositories.HealthRepository
}

// NewRegistry wires the Firestore repositories against a shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	snapshots, err := NewSnapshotRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	schedules, err := NewScheduleRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		snapshots: snapshots,
		carts:     carts,
		coupons:   coupons,
		schedules: schedules,
		health:    health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Snapshots returns the checkout snapshot repository.
func (r *Registry) Snapshots() repositories.SnapshotRepository { return r.snapshots }

// Carts returns the storefront cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Coupons returns the coupon catalog repository.
func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

// Schedules returns the delivery schedule repository.
func (r *Registry) Schedules() repositories.ScheduleRepository { return r.schedules }

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

var _ repositories.Registry = (*Registry)(nil)
