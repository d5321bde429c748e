package di

import (
	"context"
	"testing"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/payments"
	"github.com/coastalcannabis/checkout-api/internal/platform/config"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
	"github.com/coastalcannabis/checkout-api/internal/services"
)

type stubRegistry struct {
	closed bool
	health repositories.HealthRepository
}

func (r *stubRegistry) Close(context.Context) error {
	r.closed = true
	return nil
}

func (r *stubRegistry) Snapshots() repositories.SnapshotRepository { return stubSnapshots{} }
func (r *stubRegistry) Carts() repositories.CartRepository         { return stubCarts{} }
func (r *stubRegistry) Coupons() repositories.CouponRepository     { return stubCoupons{} }
func (r *stubRegistry) Schedules() repositories.ScheduleRepository { return stubSchedules{} }
func (r *stubRegistry) Health() repositories.HealthRepository      { return r.health }

type stubSnapshots struct{}

func (stubSnapshots) Create(_ context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	return snapshot, nil
}

func (stubSnapshots) Get(context.Context, string) (domain.Snapshot, error) {
	return domain.Snapshot{}, nil
}

func (stubSnapshots) Save(_ context.Context, snapshot domain.Snapshot, _ *time.Time) (domain.Snapshot, error) {
	return snapshot, nil
}

func (stubSnapshots) Delete(context.Context, string) error { return nil }

type stubCarts struct{}

func (stubCarts) GetCart(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, nil
}

type stubCoupons struct{}

func (stubCoupons) ListActive(context.Context) ([]domain.Coupon, error) { return nil, nil }

type stubSchedules struct{}

func (stubSchedules) Slots(context.Context, domain.DeliveryMethod) ([]domain.DeliverySlot, error) {
	return nil, nil
}

func (stubSchedules) Exceptions(context.Context, domain.DeliveryMethod) ([]domain.ScheduleException, error) {
	return nil, nil
}

type stubHealth struct{}

func (stubHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

type stubTaxClient struct{}

func (stubTaxClient) ItemsTax(context.Context, []domain.CartLineItem) (int64, error) {
	return 0, nil
}

type stubRatesClient struct{}

func (stubRatesClient) Rates(context.Context, string, []domain.CartLineItem) ([]services.RateQuote, error) {
	return nil, nil
}

type stubCustomerClient struct{}

func (stubCustomerClient) FindByEmail(context.Context, string) (domain.Customer, bool, error) {
	return domain.Customer{}, false, nil
}

type stubVerifier struct{}

func (stubVerifier) Lookup(context.Context, string) (payments.PaymentMethodDetails, error) {
	return payments.PaymentMethodDetails{}, nil
}

type stubPublisher struct{}

func (stubPublisher) PublishOrderCompleted(context.Context, services.OrderCompletedMessage) (string, error) {
	return "evt-1", nil
}

func testClients() Clients {
	return Clients{
		Tax:       stubTaxClient{},
		Rates:     stubRatesClient{},
		Customers: stubCustomerClient{},
		Payments:  stubVerifier{},
		Publisher: stubPublisher{},
	}
}

func testConfig() config.Config {
	return config.Config{
		Checkout: config.CheckoutConfig{
			Timezone:              "America/Vancouver",
			FreeShippingThreshold: 10000,
			DeliveryFee:           400,
			BeverageDeposit:       10,
			SlotLeadTime:          30 * time.Minute,
			SlotLength:            time.Hour,
			DeliveryPostalPrefix:  "V2A",
			MinimumAge:            19,
		},
	}
}

func TestNewContainerWiresServices(t *testing.T) {
	reg := &stubRegistry{health: stubHealth{}}

	container, err := NewContainer(context.Background(), testConfig(), ContainerDeps{
		Repositories: reg,
		Clients:      testClients(),
		Build:        services.BuildInfo{Version: "1.2.3"},
	})
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}

	svc := container.Services
	if svc.Checkout == nil {
		t.Fatal("expected checkout service to be wired")
	}
	if svc.Coupons == nil || svc.Shipping == nil || svc.Tax == nil || svc.Schedule == nil {
		t.Fatal("expected pricing services to be wired")
	}
	if svc.System == nil {
		t.Fatal("expected system service to be wired")
	}

	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !reg.closed {
		t.Fatal("expected registry to be closed")
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), ContainerDeps{Clients: testClients()}); err == nil {
		t.Fatal("expected error when registry is missing")
	}
}

func TestNewContainerSkipsSystemServiceWithoutHealth(t *testing.T) {
	reg := &stubRegistry{}

	container, err := NewContainer(context.Background(), testConfig(), ContainerDeps{
		Repositories: reg,
		Clients:      testClients(),
	})
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	if container.Services.System != nil {
		t.Fatal("expected system service to be skipped without a health repository")
	}
}

func TestNewContainerPropagatesServiceErrors(t *testing.T) {
	clients := testClients()
	clients.Tax = nil

	if _, err := NewContainer(context.Background(), testConfig(), ContainerDeps{
		Repositories: &stubRegistry{},
		Clients:      clients,
	}); err == nil {
		t.Fatal("expected error when the tax client is missing")
	}
}
