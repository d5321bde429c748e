package services

import (
	"context"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/payments"
)

// Logger mirrors the observability logging callback used across services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// TaxClient prices a set of cart line items against the jurisdiction tax service.
type TaxClient interface {
	ItemsTax(ctx context.Context, items []domain.CartLineItem) (int64, error)
}

// RateQuote is a single carrier rating option offered for a destination.
type RateQuote struct {
	ServiceCode string
	ServiceName string
	Price       int64
	Taxes       int64
	Adjustments int64
}

// TotalPrice is the base rate plus listed adjustments.
func (q RateQuote) TotalPrice() int64 {
	return q.Price + q.Adjustments
}

// RatesClient fetches carrier rate quotes for a destination postal code.
type RatesClient interface {
	Rates(ctx context.Context, destinationPostal string, items []domain.CartLineItem) ([]RateQuote, error)
}

// CustomerClient looks up the POS customer record by email. The boolean result
// reports whether a record exists; a first-time buyer resolves to (zero, false, nil).
type CustomerClient interface {
	FindByEmail(ctx context.Context, email string) (domain.Customer, bool, error)
}

// PaymentMethodVerifier confirms a tokenised payment instrument with the processor.
type PaymentMethodVerifier interface {
	Lookup(ctx context.Context, token string) (payments.PaymentMethodDetails, error)
}

// OrderCompletedMessage is the completion event payload handed to the publisher.
type OrderCompletedMessage struct {
	CheckoutID      string                `json:"checkoutId"`
	OrderID         string                `json:"orderId"`
	Email           string                `json:"email"`
	PaymentMethodID string                `json:"paymentMethodId"`
	DeliveryMethod  domain.DeliveryMethod `json:"deliveryMethod"`
	DeliveryTime    string                `json:"deliveryTime,omitempty"`
	TotalPrice      int64                 `json:"totalPrice"`
	Tip             int64                 `json:"tip"`
	CompletedAt     time.Time             `json:"completedAt"`
}

// CompletionPublisher emits the order completion event for the storefront.
type CompletionPublisher interface {
	PublishOrderCompleted(ctx context.Context, message OrderCompletedMessage) (string, error)
}

// SlotAvailability is the set of delivery windows currently offered for a method.
type SlotAvailability struct {
	Slots   []domain.TimeWindow
	Labels  []string
	ASAP    bool
	NextDay bool
	Date    domain.CivilDate
}

// ScheduleService resolves business time and computes orderable delivery windows.
type ScheduleService interface {
	ResolveBusinessTime(now time.Time) domain.BusinessTime
	SlotOrderable(slot domain.DeliverySlot, at domain.BusinessTime) bool
	AvailableSlots(ctx context.Context, method domain.DeliveryMethod) (SlotAvailability, error)
	ValidateDeliveryTime(ctx context.Context, method domain.DeliveryMethod, label string) error
}

// TaxService delegates item taxation to the jurisdiction collaborator and owns
// the aggregation of item, beverage and shipping tax components.
type TaxService interface {
	ItemsTax(ctx context.Context, items []domain.CartLineItem) (int64, error)
	BeverageDeposit(items []domain.CartLineItem) int64
	Aggregate(itemsTax, shippingTax int64, items []domain.CartLineItem) int64
}

// CouponService validates coupon codes and distributes discounts across line items.
type CouponService interface {
	Validate(ctx context.Context, code string, customer *domain.Customer) (domain.Coupon, error)
	Apply(coupon domain.Coupon, items []domain.CartLineItem) ([]domain.CartLineItem, int64)
}

// ShippingResolution is the priced outcome of a delivery method selection.
type ShippingResolution struct {
	ServiceID     int
	Method        domain.DeliveryMethod
	Title         string
	ServiceCode   string
	ServiceName   string
	Price         int64
	Tax           int64
	OriginalPrice int64
	OriginalTax   int64
	FreeShipping  bool
}

// ShippingService prices delivery methods and fronts the carrier rating API.
type ShippingService interface {
	ValidatePostalCode(method domain.DeliveryMethod, postalCode string) error
	ValidateAddress(method domain.DeliveryMethod, address *domain.Address) error
	Quotes(ctx context.Context, postalCode string, items []domain.CartLineItem) ([]RateQuote, error)
	Resolve(method domain.DeliveryMethod, selected *RateQuote, itemsSubtotal int64) (ShippingResolution, error)
	RemainingForFreeShipping(itemsSubtotal int64) int64
}

// ContactInfoCommand carries the contact-info step submission.
type ContactInfoCommand struct {
	CheckoutID  string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	DateOfBirth time.Time
}

// ShippingCommand carries the shipping step submission. Quote is required for
// carrier shipping and ignored for the other methods.
type ShippingCommand struct {
	CheckoutID string
	Method     domain.DeliveryMethod
	Address    *domain.Address
	Quote      *RateQuote
}

// CouponCommand carries a coupon application request.
type CouponCommand struct {
	CheckoutID string
	Code       string
}

// PaymentCommand carries the payment step submission. CardToken is required for
// the credit-card method and ignored for pay-in-store.
type PaymentCommand struct {
	CheckoutID      string
	PaymentMethodID string
	CardToken       string
	Tip             int64
	DeliveryTime    string
}

// StepGate answers whether direct navigation to a step is permitted and where
// to redirect when it is not.
type StepGate struct {
	Allowed  bool
	Redirect domain.Step
}

// CheckoutResult is the terminal outcome of a completed checkout.
type CheckoutResult struct {
	OrderID  string
	EventID  string
	Snapshot domain.Snapshot
}

// CheckoutService is the snapshot reconciler and step sequencer. Each submit is
// a full-snapshot read-modify-write that must leave the totals reconciled.
type CheckoutService interface {
	Init(ctx context.Context, cartID string) (domain.Snapshot, error)
	Get(ctx context.Context, checkoutID string) (domain.Snapshot, error)
	Gate(ctx context.Context, checkoutID string, step domain.Step) (StepGate, error)
	SubmitContactInfo(ctx context.Context, cmd ContactInfoCommand) (domain.Snapshot, error)
	SubmitShipping(ctx context.Context, cmd ShippingCommand) (domain.Snapshot, error)
	ApplyCoupon(ctx context.Context, cmd CouponCommand) (domain.Snapshot, error)
	RateQuotes(ctx context.Context, checkoutID string, postalCode string) ([]RateQuote, error)
	DeliveryTimes(ctx context.Context, checkoutID string) (SlotAvailability, error)
	SubmitPayment(ctx context.Context, cmd PaymentCommand) (CheckoutResult, error)
}

// SystemService exposes dependency health for the readiness endpoint.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}
