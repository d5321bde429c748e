package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coastalcannabis/checkout-api/internal/platform/config"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
	"github.com/coastalcannabis/checkout-api/internal/services"
)

// Clients groups the external collaborators the service layer depends on.
// They are constructed in main from configuration and passed in so tests can
// substitute stubs without touching the wiring.
type Clients struct {
	Tax       services.TaxClient
	Rates     services.RatesClient
	Customers services.CustomerClient
	Payments  services.PaymentMethodVerifier
	Publisher services.CompletionPublisher
}

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Checkout services.CheckoutService
	Coupons  services.CouponService
	Shipping services.ShippingService
	Tax      services.TaxService
	Schedule services.ScheduleService
	System   services.SystemService
}

// ContainerDeps carries everything NewContainer needs besides configuration.
type ContainerDeps struct {
	Repositories repositories.Registry
	Clients      Clients
	Logger       services.Logger
	Build        services.BuildInfo
	Clock        func() time.Time
	NewID        func() string
}

// Container wires repositories, services, and external clients for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// clients and a Firestore-backed registry, while tests supply in-memory substitutes.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Repositories == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Repositories,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	reg := deps.Repositories
	clients := deps.Clients

	taxSvc, err := services.NewTaxService(services.TaxServiceDeps{
		Client:          clients.Tax,
		BeverageDeposit: cfg.Checkout.BeverageDeposit,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tax service: %w", err)
	}
	svc.Tax = taxSvc

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Rates:                 clients.Rates,
		Logger:                deps.Logger,
		DeliveryFee:           cfg.Checkout.DeliveryFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		DeliveryPostalPrefix:  cfg.Checkout.DeliveryPostalPrefix,
		ProvincePostalPattern: cfg.Checkout.ProvincePostalPattern,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	scheduleSvc, err := services.NewScheduleService(services.ScheduleServiceDeps{
		Schedules:  reg.Schedules(),
		Clock:      clock,
		Timezone:   cfg.Checkout.Timezone,
		SlotLength: cfg.Checkout.SlotLength,
		LeadTime:   cfg.Checkout.SlotLeadTime,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build schedule service: %w", err)
	}
	svc.Schedule = scheduleSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Snapshots:  reg.Snapshots(),
		Carts:      reg.Carts(),
		Coupons:    couponSvc,
		Shipping:   shippingSvc,
		Tax:        taxSvc,
		Schedule:   scheduleSvc,
		Customers:  clients.Customers,
		Payments:   clients.Payments,
		Publisher:  clients.Publisher,
		Clock:      clock,
		Logger:     deps.Logger,
		NewID:      deps.NewID,
		MinimumAge: cfg.Checkout.MinimumAge,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
