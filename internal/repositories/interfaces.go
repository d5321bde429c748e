package repositories

import (
	"context"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Snapshots() SnapshotRepository
	Carts() CartRepository
	Coupons() CouponRepository
	Schedules() ScheduleRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SnapshotRepository persists the per-checkout {order, total, items, stepper} document.
// Every step commit rewrites the full document; Save takes the previously observed
// update time for optimistic concurrency.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error)
	Get(ctx context.Context, checkoutID string) (domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot, expectedUpdate *time.Time) (domain.Snapshot, error)
	Delete(ctx context.Context, checkoutID string) error
}

// CartRepository reads the storefront cart a checkout is initialised from.
type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
}

// CouponRepository reads the active coupon catalog.
type CouponRepository interface {
	ListActive(ctx context.Context) ([]domain.Coupon, error)
}

// ScheduleRepository reads the delivery slot configuration and its exact-date
// exception table.
type ScheduleRepository interface {
	Slots(ctx context.Context, method domain.DeliveryMethod) ([]domain.DeliverySlot, error)
	Exceptions(ctx context.Context, method domain.DeliveryMethod) ([]domain.ScheduleException, error)
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
