package services

import "errors"

var (
	// ErrSnapshotRepositoryMissing indicates the checkout snapshot repository dependency is absent.
	ErrSnapshotRepositoryMissing = errors.New("checkout service: snapshot repository is not configured")
	// ErrCartRepositoryMissing indicates the cart repository dependency is absent.
	ErrCartRepositoryMissing = errors.New("checkout service: cart repository is not configured")
	// ErrCouponRepositoryMissing indicates the coupon catalog repository dependency is absent.
	ErrCouponRepositoryMissing = errors.New("coupon service: coupon repository is not configured")
	// ErrScheduleRepositoryMissing indicates the delivery schedule repository dependency is absent.
	ErrScheduleRepositoryMissing = errors.New("schedule service: schedule repository is not configured")
	// ErrTaxClientMissing indicates the jurisdiction tax collaborator is absent.
	ErrTaxClientMissing = errors.New("tax service: tax client is not configured")
	// ErrRatesClientMissing indicates the carrier rating collaborator is absent.
	ErrRatesClientMissing = errors.New("shipping service: rates client is not configured")
)

var (
	// ErrCheckoutNotFound indicates no snapshot exists for the checkout id.
	ErrCheckoutNotFound = errors.New("checkout service: checkout not found")
	// ErrCartNotFound indicates the storefront cart the checkout starts from does not exist.
	ErrCartNotFound = errors.New("checkout service: cart not found")
	// ErrCartEmpty indicates checkout cannot start or price against a cart with no items.
	ErrCartEmpty = errors.New("checkout service: cart is empty")
	// ErrCheckoutCompleted indicates the checkout already reached its terminal state.
	ErrCheckoutCompleted = errors.New("checkout service: checkout already completed")
	// ErrCheckoutConflict indicates the snapshot was modified concurrently and the step must be retried.
	ErrCheckoutConflict = errors.New("checkout service: snapshot modified concurrently")
	// ErrCheckoutInvariant indicates total reconciliation failed; the prior snapshot was restored.
	ErrCheckoutInvariant = errors.New("checkout service: total reconciliation failed")
	// ErrStepNotReachable indicates forward navigation to a step whose prerequisites are unfilled.
	ErrStepNotReachable = errors.New("checkout service: step not reachable")
)

var (
	// ErrInvalidPostalCode signals the postal code fails the selected method's area check.
	ErrInvalidPostalCode = errors.New("shipping service: postal code outside the service area")
	// ErrAddressRequired signals the selected method needs a shipping address.
	ErrAddressRequired = errors.New("shipping service: address is required for the selected method")
	// ErrMissingAddressField signals a required civic address field is blank.
	ErrMissingAddressField = errors.New("shipping service: required address field is missing")
	// ErrQuoteRequired signals carrier shipping was selected without choosing a rate quote.
	ErrQuoteRequired = errors.New("shipping service: a rate quote must be selected")
	// ErrQuoteNotOffered signals the selected service code is not among the
	// rates currently offered for the destination.
	ErrQuoteNotOffered = errors.New("shipping service: selected rate quote is not offered for the destination")
	// ErrRatesUnavailable indicates the carrier rating service could not produce quotes.
	ErrRatesUnavailable = errors.New("shipping service: rating service unavailable")
)

var (
	// ErrCouponInvalidCode signals the supplied coupon code has no catalog match.
	ErrCouponInvalidCode = errors.New("coupon service: invalid coupon code")
	// ErrCouponAlreadyUsed signals the customer has already redeemed the coupon.
	ErrCouponAlreadyUsed = errors.New("coupon service: coupon already used")
)

var (
	// ErrTaxUnavailable indicates the jurisdiction tax service could not price the items.
	ErrTaxUnavailable = errors.New("tax service: tax service unavailable")
)

var (
	// ErrContactInfoIncomplete signals required contact fields are blank.
	ErrContactInfoIncomplete = errors.New("checkout service: contact info is incomplete")
	// ErrUnderage signals the customer's date of birth fails the minimum-age gate.
	ErrUnderage = errors.New("checkout service: customer is under the minimum age")
	// ErrDeliveryTimeRequired signals local delivery was selected without a time slot.
	ErrDeliveryTimeRequired = errors.New("checkout service: a delivery time slot is required")
	// ErrDeliveryTimeUnavailable signals the selected time slot is not currently offered.
	ErrDeliveryTimeUnavailable = errors.New("checkout service: delivery time slot is not available")
	// ErrTipInvalid signals a negative tip amount.
	ErrTipInvalid = errors.New("checkout service: tip must not be negative")
	// ErrPaymentMethodInvalid signals an unknown payment method id.
	ErrPaymentMethodInvalid = errors.New("checkout service: invalid payment method")
	// ErrPaymentVerificationFailed signals the card could not be verified with the processor.
	ErrPaymentVerificationFailed = errors.New("checkout service: payment method verification failed")
)
