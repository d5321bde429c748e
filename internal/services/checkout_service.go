package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

// DefaultMinimumAge is the BC legal purchase age.
const DefaultMinimumAge = 19

// CheckoutServiceDeps bundles collaborators required to construct a CheckoutService.
type CheckoutServiceDeps struct {
	Snapshots  repositories.SnapshotRepository
	Carts      repositories.CartRepository
	Coupons    CouponService
	Shipping   ShippingService
	Tax        TaxService
	Schedule   ScheduleService
	Customers  CustomerClient
	Payments   PaymentMethodVerifier
	Publisher  CompletionPublisher
	Clock      func() time.Time
	Logger     Logger
	NewID      func() string
	MinimumAge int
}

type checkoutService struct {
	snapshots  repositories.SnapshotRepository
	carts      repositories.CartRepository
	coupons    CouponService
	shipping   ShippingService
	tax        TaxService
	schedule   ScheduleService
	customers  CustomerClient
	payments   PaymentMethodVerifier
	publisher  CompletionPublisher
	clock      func() time.Time
	logger     Logger
	newID      func() string
	minimumAge int
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService wires the snapshot reconciler with its pricing collaborators.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Snapshots == nil {
		return nil, ErrSnapshotRepositoryMissing
	}
	if deps.Carts == nil {
		return nil, ErrCartRepositoryMissing
	}
	if deps.Coupons == nil {
		return nil, ErrCouponRepositoryMissing
	}
	if deps.Shipping == nil {
		return nil, ErrRatesClientMissing
	}
	if deps.Tax == nil {
		return nil, ErrTaxClientMissing
	}
	if deps.Schedule == nil {
		return nil, ErrScheduleRepositoryMissing
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	minimumAge := deps.MinimumAge
	if minimumAge <= 0 {
		minimumAge = DefaultMinimumAge
	}

	return &checkoutService{
		snapshots:  deps.Snapshots,
		carts:      deps.Carts,
		coupons:    deps.Coupons,
		shipping:   deps.Shipping,
		tax:        deps.Tax,
		schedule:   deps.Schedule,
		customers:  deps.Customers,
		payments:   deps.Payments,
		publisher:  deps.Publisher,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
		newID:      newID,
		minimumAge: minimumAge,
	}, nil
}

// Init starts a fresh checkout from the storefront cart. The cart is frozen
// into the snapshot's item copy and priced immediately so every later step
// works from reconciled totals.
func (s *checkoutService) Init(ctx context.Context, cartID string) (domain.Snapshot, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return domain.Snapshot{}, ErrCartNotFound
		}
		return domain.Snapshot{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Snapshot{}, ErrCartEmpty
	}

	items := make([]domain.CartLineItem, len(cart.Items))
	copy(items, cart.Items)

	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	itemsTax, err := s.tax.ItemsTax(ctx, items)
	if err != nil {
		return domain.Snapshot{}, err
	}
	totalTax := s.tax.Aggregate(itemsTax, 0, items)

	now := s.clock()
	total := domain.Total{
		ItemsSubTotal: domain.SubTotal{Price: subtotal, Qty: cart.ItemsQty()},
		Tax:           domain.TaxTotals{TotalTaxAmount: totalTax},
	}
	total.Price = total.Reconciled(0)

	snapshot := domain.Snapshot{
		CheckoutID: s.newID(),
		Order: domain.Order{
			ID:         s.newID(),
			TotalPrice: total.Price,
			TaxAmount:  totalTax,
			Attrs: domain.OrderAttributes{
				OriginalSubTotal: subtotal,
				CheckoutInited:   true,
			},
			CreatedAt: now,
		},
		Total:     total,
		Items:     items,
		Stepper:   domain.NewStepper(),
		CreatedAt: now,
	}

	created, err := s.snapshots.Create(ctx, snapshot)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.logger(ctx, "checkout.inited", map[string]any{
		"checkout_id": created.CheckoutID,
		"cart_id":     cartID,
		"subtotal":    subtotal,
	})
	return s.decorate(created), nil
}

// Get loads the checkout snapshot.
func (s *checkoutService) Get(ctx context.Context, checkoutID string) (domain.Snapshot, error) {
	return s.load(ctx, checkoutID)
}

// Gate answers whether direct navigation to the step is allowed and where to
// redirect otherwise.
func (s *checkoutService) Gate(ctx context.Context, checkoutID string, step domain.Step) (StepGate, error) {
	snapshot, err := s.load(ctx, checkoutID)
	if err != nil {
		return StepGate{}, err
	}
	return StepGate{
		Allowed:  snapshot.Stepper.Reachable(step),
		Redirect: snapshot.Stepper.EarliestUnfilled(),
	}, nil
}

// SubmitContactInfo records the customer on the order. Contact info never
// touches pricing. The POS record, when one exists for the email, contributes
// the coupon redemption history used by later coupon validation.
func (s *checkoutService) SubmitContactInfo(ctx context.Context, cmd ContactInfoCommand) (domain.Snapshot, error) {
	prior, err := s.load(ctx, cmd.CheckoutID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	firstName := strings.TrimSpace(cmd.FirstName)
	lastName := strings.TrimSpace(cmd.LastName)
	email := strings.TrimSpace(cmd.Email)
	if firstName == "" || lastName == "" || email == "" || cmd.DateOfBirth.IsZero() {
		return domain.Snapshot{}, ErrContactInfoIncomplete
	}
	if ageYears(cmd.DateOfBirth, s.clock()) < s.minimumAge {
		return domain.Snapshot{}, ErrUnderage
	}

	customer := domain.Customer{
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		Phone:       strings.TrimSpace(cmd.Phone),
		DateOfBirth: cmd.DateOfBirth,
	}
	if s.customers != nil {
		record, found, lookupErr := s.customers.FindByEmail(ctx, email)
		switch {
		case lookupErr != nil:
			// History is advisory; a degraded lookup must not block the step.
			s.logger(ctx, "checkout.customer.lookup.failed", map[string]any{
				"checkout_id": cmd.CheckoutID,
				"error":       lookupErr.Error(),
			})
		case found:
			customer.ReferralSource = record.ReferralSource
		}
	}

	work := prior.Clone()
	work.Order.Customer = &customer
	work.Stepper.Fill(domain.StepContactInfo)
	work.Stepper.CurrentStep = domain.StepShippingAddress
	return s.commit(ctx, prior, work, "checkout.contact.submitted")
}

// SubmitShipping resolves the delivery method into a service line and swaps
// the shipping tax component. Stale shipping tax from a prior submission is
// subtracted before the new amount is added, so re-submitting the same method
// is idempotent and switching methods never double-counts.
func (s *checkoutService) SubmitShipping(ctx context.Context, cmd ShippingCommand) (domain.Snapshot, error) {
	prior, err := s.load(ctx, cmd.CheckoutID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !prior.Stepper.Reachable(domain.StepShippingAddress) {
		return domain.Snapshot{}, ErrStepNotReachable
	}
	if len(prior.Items) == 0 {
		return domain.Snapshot{}, ErrCheckoutInvariant
	}

	if err := s.shipping.ValidateAddress(cmd.Method, cmd.Address); err != nil {
		return domain.Snapshot{}, err
	}

	quote := cmd.Quote
	if cmd.Method == domain.MethodShipping {
		quote, err = s.offeredQuote(ctx, cmd, prior.Items)
		if err != nil {
			return domain.Snapshot{}, err
		}
	}

	work := prior.Clone()
	if cmd.Method != domain.MethodSelfPickup {
		address := *cmd.Address
		work.Order.ShippingAddress = &address
	} else {
		work.Order.ShippingAddress = nil
	}

	if err := s.applyShipping(&work, cmd.Method, quote); err != nil {
		return domain.Snapshot{}, err
	}

	work.Stepper.Fill(domain.StepShippingAddress)
	work.Stepper.CurrentStep = domain.StepPaymentMethod
	return s.commit(ctx, prior, work, "checkout.shipping.submitted")
}

// offeredQuote re-prices the selected carrier rate from the rating API. The
// submitted quote only names the service; its money fields are discarded so
// a client cannot price its own shipping.
func (s *checkoutService) offeredQuote(ctx context.Context, cmd ShippingCommand, items []domain.CartLineItem) (*RateQuote, error) {
	if cmd.Quote == nil || strings.TrimSpace(cmd.Quote.ServiceCode) == "" {
		return nil, ErrQuoteRequired
	}
	offered, err := s.shipping.Quotes(ctx, cmd.Address.PostalCode, items)
	if err != nil {
		return nil, err
	}
	for i := range offered {
		if offered[i].ServiceCode == cmd.Quote.ServiceCode {
			return &offered[i], nil
		}
	}
	return nil, ErrQuoteNotOffered
}

// ApplyCoupon validates and applies a coupon, re-prices tax on the discounted
// base and re-evaluates free shipping. At most one discount is active; a new
// coupon replaces the prior one.
func (s *checkoutService) ApplyCoupon(ctx context.Context, cmd CouponCommand) (domain.Snapshot, error) {
	prior, err := s.load(ctx, cmd.CheckoutID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(prior.Items) == 0 {
		return domain.Snapshot{}, ErrCartEmpty
	}

	coupon, err := s.coupons.Validate(ctx, cmd.Code, prior.Order.Customer)
	if err != nil {
		return domain.Snapshot{}, err
	}

	work := prior.Clone()
	discounted, value := s.coupons.Apply(coupon, work.Items)
	work.Items = discounted

	itemsTax, err := s.tax.ItemsTax(ctx, discounted)
	if err != nil {
		return domain.Snapshot{}, err
	}

	work.Order.Discounts = []domain.Discount{{
		Code:  coupon.Code,
		Title: coupon.Code,
		Type:  coupon.Type,
		Value: coupon.Value,
	}}
	work.Total.Discount = value
	work.Order.Attrs.OriginalSubTotal = work.Total.ItemsSubTotal.Price

	shippingTax := work.Order.Attrs.ShippingTax
	if line := work.Order.ServiceLine(); line != nil {
		// Free shipping is evaluated against the discounted subtotal on every
		// recomputation, so a coupon can both grant and revoke it.
		if err := s.applyShipping(&work, line.Method, priorQuote(work.Order)); err != nil {
			return domain.Snapshot{}, err
		}
		shippingTax = work.Order.Attrs.ShippingTax
	}

	work.Total.Tax.TotalTaxAmount = s.tax.Aggregate(itemsTax, shippingTax, discounted)
	work.Total.Tax.Shipping.ShippingTaxes = shippingTax
	return s.commit(ctx, prior, work, "checkout.coupon.applied")
}

// RateQuotes fetches carrier quotes for the checkout's items.
func (s *checkoutService) RateQuotes(ctx context.Context, checkoutID string, postalCode string) ([]RateQuote, error) {
	snapshot, err := s.load(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	return s.shipping.Quotes(ctx, postalCode, snapshot.Items)
}

// DeliveryTimes reports the delivery windows currently offered for the
// checkout's selected method.
func (s *checkoutService) DeliveryTimes(ctx context.Context, checkoutID string) (SlotAvailability, error) {
	snapshot, err := s.load(ctx, checkoutID)
	if err != nil {
		return SlotAvailability{}, err
	}
	method := domain.MethodDelivery
	if line := snapshot.Order.ServiceLine(); line != nil {
		method = line.Method
	}
	return s.schedule.AvailableSlots(ctx, method)
}

// SubmitPayment finalises the checkout: payment method, untaxed tip, delivery
// slot and age gate, then the completion event. The snapshot is cleared on
// success; re-entering checkout afterwards starts fresh from the cart.
func (s *checkoutService) SubmitPayment(ctx context.Context, cmd PaymentCommand) (CheckoutResult, error) {
	prior, err := s.load(ctx, cmd.CheckoutID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !prior.Stepper.Reachable(domain.StepPaymentMethod) {
		return CheckoutResult{}, ErrStepNotReachable
	}
	if cmd.Tip < 0 {
		return CheckoutResult{}, ErrTipInvalid
	}

	var title string
	switch cmd.PaymentMethodID {
	case domain.PaymentMethodPayInStore:
		title = "Pay in Store"
	case domain.PaymentMethodCreditCard:
		title = "Credit Card"
	default:
		return CheckoutResult{}, ErrPaymentMethodInvalid
	}

	customer := prior.Order.Customer
	if customer == nil {
		return CheckoutResult{}, ErrStepNotReachable
	}
	if ageYears(customer.DateOfBirth, s.clock()) < s.minimumAge {
		return CheckoutResult{}, ErrUnderage
	}

	deliveryTime := strings.TrimSpace(cmd.DeliveryTime)
	if prior.Order.HasDelivery() {
		if err := s.schedule.ValidateDeliveryTime(ctx, domain.MethodDelivery, deliveryTime); err != nil {
			return CheckoutResult{}, err
		}
	}

	if cmd.PaymentMethodID == domain.PaymentMethodCreditCard {
		if s.payments == nil || strings.TrimSpace(cmd.CardToken) == "" {
			return CheckoutResult{}, ErrPaymentVerificationFailed
		}
		if _, err := s.payments.Lookup(ctx, cmd.CardToken); err != nil {
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
		}
	}

	work := prior.Clone()
	work.Order.PaymentMethod = &domain.PaymentMethod{ID: cmd.PaymentMethodID, Title: title}
	work.Order.Tip = cmd.Tip
	work.Order.DeliveryTime = deliveryTime
	work.Order.Attrs.CheckoutCompleted = true
	work.Stepper.Fill(domain.StepPaymentMethod)

	if err := reconcile(&work); err != nil {
		s.logInvariant(ctx, work.CheckoutID, err)
		return CheckoutResult{}, ErrCheckoutInvariant
	}

	completedAt := s.clock()
	var eventID string
	if s.publisher != nil {
		method := domain.MethodSelfPickup
		if line := work.Order.ServiceLine(); line != nil {
			method = line.Method
		}
		eventID, err = s.publisher.PublishOrderCompleted(ctx, OrderCompletedMessage{
			CheckoutID:      work.CheckoutID,
			OrderID:         work.Order.ID,
			Email:           customer.Email,
			PaymentMethodID: cmd.PaymentMethodID,
			DeliveryMethod:  method,
			DeliveryTime:    deliveryTime,
			TotalPrice:      work.Total.Price,
			Tip:             cmd.Tip,
			CompletedAt:     completedAt,
		})
		if err != nil {
			return CheckoutResult{}, err
		}
	}

	if err := s.snapshots.Delete(ctx, work.CheckoutID); err != nil {
		// The order is already on its way; a lingering snapshot only means
		// the next checkout entry replaces it.
		s.logger(ctx, "checkout.snapshot.delete.failed", map[string]any{
			"checkout_id": work.CheckoutID,
			"error":       err.Error(),
		})
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"checkout_id": work.CheckoutID,
		"order_id":    work.Order.ID,
		"total":       work.Total.Price,
	})
	return CheckoutResult{
		OrderID:  work.Order.ID,
		EventID:  eventID,
		Snapshot: work,
	}, nil
}

// applyShipping resolves the method against the current discounted subtotal
// and swaps the service line, attributes and shipping tax component in place.
func (s *checkoutService) applyShipping(work *domain.Snapshot, method domain.DeliveryMethod, quote *RateQuote) error {
	discountedSubtotal := work.Total.ItemsSubTotal.Price - work.Total.Discount
	resolution, err := s.shipping.Resolve(method, quote, discountedSubtotal)
	if err != nil {
		return err
	}

	staleShippingTax := work.Order.Attrs.ShippingTax

	work.Order.Services = []domain.ServiceLine{{
		ServiceID:  resolution.ServiceID,
		Method:     resolution.Method,
		Title:      resolution.Title,
		TotalPrice: resolution.Price,
		IsDelivery: resolution.Method != domain.MethodSelfPickup,
	}}
	work.Order.Attrs.ServiceCode = resolution.ServiceCode
	work.Order.Attrs.ServiceName = resolution.ServiceName
	work.Order.Attrs.ShippingRate = resolution.Price
	work.Order.Attrs.OriginalShippingRate = resolution.OriginalPrice
	work.Order.Attrs.OriginalShippingTax = resolution.OriginalTax
	work.Order.Attrs.ShippingTax = resolution.Tax
	work.Order.Attrs.FreeShippingApplied = resolution.FreeShipping

	work.Total.ServicesSubTotal = domain.SubTotal{Price: resolution.Price, Qty: 1}
	work.Total.Tax.TotalTaxAmount = work.Total.Tax.TotalTaxAmount - staleShippingTax + resolution.Tax
	work.Total.Tax.Shipping.ShippingTaxes = resolution.Tax
	return nil
}

func (s *checkoutService) load(ctx context.Context, checkoutID string) (domain.Snapshot, error) {
	if strings.TrimSpace(checkoutID) == "" {
		return domain.Snapshot{}, ErrCheckoutNotFound
	}
	snapshot, err := s.snapshots.Get(ctx, checkoutID)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return domain.Snapshot{}, ErrCheckoutNotFound
		}
		return domain.Snapshot{}, err
	}
	if snapshot.Order.Attrs.CheckoutCompleted {
		return domain.Snapshot{}, ErrCheckoutCompleted
	}
	return s.decorate(snapshot), nil
}

// commit reconciles the working snapshot and fully overwrites the stored one,
// guarded by the previously observed update time. On an invariant failure the
// prior snapshot stays untouched in storage.
func (s *checkoutService) commit(ctx context.Context, prior, work domain.Snapshot, event string) (domain.Snapshot, error) {
	if err := reconcile(&work); err != nil {
		s.logInvariant(ctx, work.CheckoutID, err)
		return domain.Snapshot{}, ErrCheckoutInvariant
	}

	expected := prior.UpdatedAt
	saved, err := s.snapshots.Save(ctx, work, &expected)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok {
			switch {
			case repoErr.IsConflict():
				return domain.Snapshot{}, ErrCheckoutConflict
			case repoErr.IsNotFound():
				return domain.Snapshot{}, ErrCheckoutNotFound
			}
		}
		return domain.Snapshot{}, err
	}

	s.logger(ctx, event, map[string]any{
		"checkout_id": saved.CheckoutID,
		"total":       saved.Total.Price,
	})
	return s.decorate(saved), nil
}

// decorate fills display-only figures the storefront renders next to the
// snapshot. They are recomputed on every read rather than stored.
func (s *checkoutService) decorate(snapshot domain.Snapshot) domain.Snapshot {
	snapshot.RemainingForFreeShipping = s.shipping.RemainingForFreeShipping(snapshot.Total.ItemsSubTotal.Price)
	return snapshot
}

func (s *checkoutService) logInvariant(ctx context.Context, checkoutID string, err error) {
	s.logger(ctx, "checkout.invariant.violated", map[string]any{
		"checkout_id": checkoutID,
		"error":       err.Error(),
	})
}

// reconcile recomputes the grand total from the component fields and keeps the
// order mirror in lockstep. A negative total is a hard failure.
func reconcile(snapshot *domain.Snapshot) error {
	price := snapshot.Total.Reconciled(snapshot.Order.Tip)
	if price < 0 {
		return fmt.Errorf("reconciled total is negative: %d", price)
	}
	if snapshot.Total.ItemsSubTotal.Qty == 0 && snapshot.Total.ServicesSubTotal.Price > 0 {
		return fmt.Errorf("shipping priced against an empty cart")
	}
	snapshot.Total.Price = price
	snapshot.Order.TotalPrice = price
	snapshot.Order.TaxAmount = snapshot.Total.Tax.TotalTaxAmount
	return nil
}

// priorQuote reconstructs the selected carrier quote from the order attributes
// so shipping can be re-resolved after a subtotal change.
func priorQuote(order domain.Order) *RateQuote {
	line := order.ServiceLine()
	if line == nil || line.Method != domain.MethodShipping {
		return nil
	}
	return &RateQuote{
		ServiceCode: order.Attrs.ServiceCode,
		ServiceName: order.Attrs.ServiceName,
		Price:       order.Attrs.OriginalShippingRate,
		Taxes:       order.Attrs.OriginalShippingTax,
	}
}

func ageYears(dateOfBirth, at time.Time) int {
	years := at.Year() - dateOfBirth.Year()
	anniversary := time.Date(at.Year(), dateOfBirth.Month(), dateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		years--
	}
	return years
}
