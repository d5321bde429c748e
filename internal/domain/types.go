package domain

import (
	"strings"
	"time"
)

// All monetary amounts are expressed in integer cents (CAD). The checkout
// invariants below are therefore exact equalities rather than epsilon checks.

// CartLineItem is a single product-quantity entry in the cart. It is frozen at
// checkout start; only DiscountedUnitPrice may be annotated afterwards, and only
// by the coupon engine.
type CartLineItem struct {
	ProductID           string
	SKU                 string
	Title               string
	UnitPrice           int64
	DiscountedUnitPrice *int64
	Quantity            int
	IsBeverage          bool
	Classification      string
	ThcGrams            float64
	WeightGrams         int
}

// EffectiveUnitPrice returns the discounted unit price when a coupon has been
// applied, the catalog unit price otherwise.
func (i CartLineItem) EffectiveUnitPrice() int64 {
	if i.DiscountedUnitPrice != nil {
		return *i.DiscountedUnitPrice
	}
	return i.UnitPrice
}

// LineTotal is the effective unit price multiplied by quantity.
func (i CartLineItem) LineTotal() int64 {
	return i.EffectiveUnitPrice() * int64(i.Quantity)
}

// Cart is the storefront's read-only input to checkout.
type Cart struct {
	ID        string
	Items     []CartLineItem
	Subtotal  int64
	TaxAmount int64
}

// ItemsQty returns the summed quantity across all line items.
func (c Cart) ItemsQty() int {
	qty := 0
	for _, item := range c.Items {
		qty += item.Quantity
	}
	return qty
}

// DeliveryMethod enumerates how an order leaves the store.
type DeliveryMethod string

const (
	// MethodSelfPickup is in-store pickup; free, no address required.
	MethodSelfPickup DeliveryMethod = "selfPickup"
	// MethodDelivery is local same-day delivery within the Penticton area.
	MethodDelivery DeliveryMethod = "delivery"
	// MethodShipping is carrier shipping within BC via Canada Post.
	MethodShipping DeliveryMethod = "shipping"
)

// Delivery method identifiers carried over from the storefront catalog.
const (
	SelfPickupServiceID = 1
	DeliveryServiceID   = 2
	ShippingServiceID   = 3
)

// ServiceLine is the order's delivery/shipping record. An order carries zero or
// one service line; the price reflects any free-shipping override.
type ServiceLine struct {
	ServiceID  int
	Method     DeliveryMethod
	Title      string
	TotalPrice int64
	IsDelivery bool
}

// DiscountType distinguishes percent coupons from flat-amount coupons.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Coupon is a catalog entry. Value is whole percentage points for percent
// coupons and cents for fixed coupons.
type Coupon struct {
	Code  string
	Type  DiscountType
	Value int64
}

// Discount is the applied form of a coupon recorded on the order. At most one
// discount is active; applying a new coupon replaces the prior one.
type Discount struct {
	Code  string
	Title string
	Type  DiscountType
	Value int64
}

// Customer captures the contact-info step. ReferralSource holds the customer's
// historical coupon codes as a comma-separated list, mirroring the POS record.
type Customer struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DateOfBirth    time.Time
	ReferralSource string
}

// UsedCoupons splits ReferralSource into normalised coupon codes.
func (c Customer) UsedCoupons() []string {
	if strings.TrimSpace(c.ReferralSource) == "" {
		return nil
	}
	parts := strings.Split(c.ReferralSource, ",")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		code := strings.ToLower(strings.TrimSpace(part))
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Address is a Canadian civic address used for delivery and shipping.
type Address struct {
	FirstName    string
	LastName     string
	AddressLine1 string
	AddressLine2 string
	City         string
	Province     string
	PostalCode   string
	Phone        string
}

// PaymentMethod identifiers carried over from the storefront catalog.
const (
	PaymentMethodPayInStore = "4"
	PaymentMethodCreditCard = "5"
)

// PaymentMethod is the selected payment option recorded on the order.
type PaymentMethod struct {
	ID    string
	Title string
}

// OrderAttributes is the denormalised attribute bag persisted with the order.
// ShippingTax feeds Total.Tax.TotalTaxAmount: every write to it must be
// followed by a tax re-aggregation.
type OrderAttributes struct {
	ShippingTax          int64
	ShippingRate         int64
	OriginalShippingRate int64
	OriginalShippingTax  int64
	FreeShippingApplied  bool
	ServiceCode          string
	ServiceName          string
	OriginalSubTotal     int64
	CheckoutInited       bool
	CheckoutCompleted    bool
}

// Order is the mutable half of the checkout snapshot.
type Order struct {
	ID              string
	Customer        *Customer
	ShippingAddress *Address
	BillingAddress  *Address
	Services        []ServiceLine
	Discounts       []Discount
	PaymentMethod   *PaymentMethod
	TotalPrice      int64
	TaxAmount       int64
	Tip             int64
	DeliveryTime    string
	Attrs           OrderAttributes
	CreatedAt       time.Time
}

// ServiceLine returns the order's single delivery service line, if set.
func (o Order) ServiceLine() *ServiceLine {
	if len(o.Services) == 0 {
		return nil
	}
	return &o.Services[0]
}

// HasDelivery reports whether the local-delivery method is selected.
func (o Order) HasDelivery() bool {
	line := o.ServiceLine()
	return line != nil && line.Method == MethodDelivery
}

// HasShipping reports whether carrier shipping is selected.
func (o Order) HasShipping() bool {
	line := o.ServiceLine()
	return line != nil && line.Method == MethodShipping
}

// SubTotal is a price/quantity pair used for items and services subtotals.
type SubTotal struct {
	Price int64
	Qty   int
}

// ShippingTaxes isolates the shipping component of the order's tax.
type ShippingTaxes struct {
	ShippingTaxes int64
}

// TaxTotals aggregates item, beverage and shipping taxes.
type TaxTotals struct {
	TotalTaxAmount int64
	Shipping       ShippingTaxes
}

// Total is the derived half of the checkout snapshot. After each committed
// step it must satisfy
//
//	Price == ItemsSubTotal.Price - Discount + ServicesSubTotal.Price + Tax.TotalTaxAmount + Tip
//
// and Order.TotalPrice must equal Price.
type Total struct {
	Price            int64
	ItemsSubTotal    SubTotal
	ServicesSubTotal SubTotal
	Discount         int64
	Tax              TaxTotals
}

// Reconciled recomputes the grand total from the component fields plus the
// given untaxed tip.
func (t Total) Reconciled(tip int64) int64 {
	return t.ItemsSubTotal.Price - t.Discount + t.ServicesSubTotal.Price + t.Tax.TotalTaxAmount + tip
}

// Step identifies a checkout page in the linear flow.
type Step string

const (
	StepContactInfo     Step = "contactInfo"
	StepShippingAddress Step = "shippingAddress"
	StepPaymentMethod   Step = "paymentMethod"
)

// CheckoutSteps is the fixed forward order of the flow.
var CheckoutSteps = []Step{StepContactInfo, StepShippingAddress, StepPaymentMethod}

// Stepper tracks flow progress. FilledSteps only grows until checkout
// completes or resets; back navigation never unfills a step.
type Stepper struct {
	FilledSteps []Step
	CurrentStep Step
	Steps       []Step
}

// NewStepper returns a stepper positioned at the contact-info step.
func NewStepper() Stepper {
	return Stepper{
		FilledSteps: []Step{},
		CurrentStep: StepContactInfo,
		Steps:       append([]Step(nil), CheckoutSteps...),
	}
}

// Filled reports whether the given step has been completed.
func (s Stepper) Filled(step Step) bool {
	for _, filled := range s.FilledSteps {
		if filled == step {
			return true
		}
	}
	return false
}

// Fill marks the step completed. Filling is idempotent and monotonic.
func (s *Stepper) Fill(step Step) {
	if s.Filled(step) {
		return
	}
	s.FilledSteps = append(s.FilledSteps, step)
}

// EarliestUnfilled returns the first step in flow order that has not been
// completed, or the payment step when everything prior is filled.
func (s Stepper) EarliestUnfilled() Step {
	for _, step := range s.Steps {
		if !s.Filled(step) {
			return step
		}
	}
	return StepPaymentMethod
}

// Reachable reports whether direct navigation to the step is permitted: every
// step before it must be filled. Backward navigation is always permitted.
func (s Stepper) Reachable(step Step) bool {
	for _, candidate := range s.Steps {
		if candidate == step {
			return true
		}
		if !s.Filled(candidate) {
			return false
		}
	}
	return false
}

// Snapshot is the persisted {order, total} pair plus the denormalised item
// copy. It is created once at checkout entry, rewritten in full by every step
// commit, and cleared when checkout completes.
type Snapshot struct {
	CheckoutID string
	Order      Order
	Total      Total
	Items      []CartLineItem
	Stepper    Stepper
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// RemainingForFreeShipping is the storefront banner figure. It is derived
	// from the current items subtotal on every read and never persisted.
	RemainingForFreeShipping int64
}

// Clone returns a deep copy so step transforms can mutate freely and restore
// the prior snapshot on invariant failure.
func (s Snapshot) Clone() Snapshot {
	dup := s
	dup.Items = cloneItems(s.Items)
	dup.Order.Services = append([]ServiceLine(nil), s.Order.Services...)
	dup.Order.Discounts = append([]Discount(nil), s.Order.Discounts...)
	if s.Order.Customer != nil {
		customer := *s.Order.Customer
		dup.Order.Customer = &customer
	}
	if s.Order.ShippingAddress != nil {
		addr := *s.Order.ShippingAddress
		dup.Order.ShippingAddress = &addr
	}
	if s.Order.BillingAddress != nil {
		addr := *s.Order.BillingAddress
		dup.Order.BillingAddress = &addr
	}
	if s.Order.PaymentMethod != nil {
		method := *s.Order.PaymentMethod
		dup.Order.PaymentMethod = &method
	}
	dup.Stepper.FilledSteps = append([]Step(nil), s.Stepper.FilledSteps...)
	dup.Stepper.Steps = append([]Step(nil), s.Stepper.Steps...)
	return dup
}

func cloneItems(items []CartLineItem) []CartLineItem {
	if items == nil {
		return nil
	}
	dup := make([]CartLineItem, len(items))
	copy(dup, items)
	for i, item := range items {
		if item.DiscountedUnitPrice != nil {
			price := *item.DiscountedUnitPrice
			dup[i].DiscountedUnitPrice = &price
		}
	}
	return dup
}
