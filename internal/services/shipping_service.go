package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

// Jurisdiction defaults for the Penticton store.
const (
	DefaultDeliveryFee           int64 = 400
	DefaultFreeShippingThreshold int64 = 10000
	DefaultDeliveryPostalPrefix        = "V2A"
	DefaultProvincePostalPattern       = `^[Vv]\d[A-Za-z][ ]?\d[A-Za-z]\d$`
)

// ShippingServiceDeps bundles dependencies required to construct a ShippingService.
type ShippingServiceDeps struct {
	Rates                 RatesClient
	Logger                Logger
	DeliveryFee           int64
	FreeShippingThreshold int64
	DeliveryPostalPrefix  string
	ProvincePostalPattern string
}

type shippingService struct {
	rates          RatesClient
	logger         Logger
	deliveryFee    int64
	freeThreshold  int64
	deliveryPrefix string
	provincePostal *regexp.Regexp
}

var _ ShippingService = (*shippingService)(nil)

// NewShippingService wires a ShippingService fronting the carrier rating client.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Rates == nil {
		return nil, ErrRatesClientMissing
	}

	fee := deps.DeliveryFee
	if fee <= 0 {
		fee = DefaultDeliveryFee
	}
	threshold := deps.FreeShippingThreshold
	if threshold <= 0 {
		threshold = DefaultFreeShippingThreshold
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.DeliveryPostalPrefix))
	if prefix == "" {
		prefix = DefaultDeliveryPostalPrefix
	}
	pattern := strings.TrimSpace(deps.ProvincePostalPattern)
	if pattern == "" {
		pattern = DefaultProvincePostalPattern
	}
	provincePattern, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("shipping service: invalid postal pattern: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		rates:          deps.Rates,
		logger:         logger,
		deliveryFee:    fee,
		freeThreshold:  threshold,
		deliveryPrefix: prefix,
		provincePostal: provincePattern,
	}, nil
}

// ValidatePostalCode gates the postal code for the method before any network
// call. Local delivery is restricted to the store's prefix area; carrier
// shipping to the provincial pattern.
func (s *shippingService) ValidatePostalCode(method domain.DeliveryMethod, postalCode string) error {
	switch method {
	case domain.MethodSelfPickup:
		return nil
	case domain.MethodDelivery:
		normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(postalCode), " ", ""))
		if normalized == "" || !strings.HasPrefix(normalized, s.deliveryPrefix) {
			return ErrInvalidPostalCode
		}
		return nil
	case domain.MethodShipping:
		trimmed := strings.TrimSpace(postalCode)
		if trimmed == "" || !s.provincePostal.MatchString(trimmed) {
			return ErrInvalidPostalCode
		}
		return nil
	default:
		return ErrInvalidPostalCode
	}
}

// ValidateAddress checks the civic address for the method. Self pickup needs
// no address at all.
func (s *shippingService) ValidateAddress(method domain.DeliveryMethod, address *domain.Address) error {
	if method == domain.MethodSelfPickup {
		return nil
	}
	if address == nil {
		return ErrAddressRequired
	}
	required := []string{address.FirstName, address.LastName, address.AddressLine1, address.City, address.PostalCode}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return ErrMissingAddressField
		}
	}
	return s.ValidatePostalCode(method, address.PostalCode)
}

// Quotes fetches carrier rate quotes for the destination. The postal code must
// already satisfy the provincial pattern; invalid codes never reach the network.
func (s *shippingService) Quotes(ctx context.Context, postalCode string, items []domain.CartLineItem) ([]RateQuote, error) {
	if s == nil || s.rates == nil {
		return nil, ErrRatesClientMissing
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}
	if err := s.ValidatePostalCode(domain.MethodShipping, postalCode); err != nil {
		return nil, err
	}

	quotes, err := s.rates.Rates(ctx, postalCode, items)
	if err != nil {
		s.logger(ctx, "shipping.rates.failed", map[string]any{
			"postal": postalCode,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
	}
	return quotes, nil
}

// Resolve prices the delivery method. The free-shipping threshold is applied
// against the current items subtotal on every call; eligibility is never
// sticky across recomputations. The pre-override price survives as
// OriginalPrice for display.
func (s *shippingService) Resolve(method domain.DeliveryMethod, selected *RateQuote, itemsSubtotal int64) (ShippingResolution, error) {
	switch method {
	case domain.MethodSelfPickup:
		return ShippingResolution{
			ServiceID: domain.SelfPickupServiceID,
			Method:    domain.MethodSelfPickup,
			Title:     "Self Pickup",
		}, nil
	case domain.MethodDelivery:
		resolution := ShippingResolution{
			ServiceID:     domain.DeliveryServiceID,
			Method:        domain.MethodDelivery,
			Title:         "Local Delivery",
			Price:         s.deliveryFee,
			OriginalPrice: s.deliveryFee,
		}
		s.applyFreeShipping(&resolution, itemsSubtotal)
		return resolution, nil
	case domain.MethodShipping:
		if selected == nil {
			return ShippingResolution{}, ErrQuoteRequired
		}
		resolution := ShippingResolution{
			ServiceID:     domain.ShippingServiceID,
			Method:        domain.MethodShipping,
			Title:         "Canada Post",
			ServiceCode:   selected.ServiceCode,
			Price:         selected.TotalPrice(),
			Tax:           selected.Taxes,
			OriginalPrice: selected.TotalPrice(),
		}
		if name := strings.TrimSpace(selected.ServiceName); name != "" {
			resolution.ServiceName = name
			resolution.Title = "Canada Post " + name
		}
		s.applyFreeShipping(&resolution, itemsSubtotal)
		return resolution, nil
	default:
		return ShippingResolution{}, errors.New("shipping service: unknown delivery method " + string(method))
	}
}

// RemainingForFreeShipping reports how many cents of items subtotal remain
// before shipping is free. Zero once the threshold is met.
func (s *shippingService) RemainingForFreeShipping(itemsSubtotal int64) int64 {
	if itemsSubtotal >= s.freeThreshold {
		return 0
	}
	return s.freeThreshold - itemsSubtotal
}

func (s *shippingService) applyFreeShipping(resolution *ShippingResolution, itemsSubtotal int64) {
	resolution.OriginalTax = resolution.Tax
	if itemsSubtotal < s.freeThreshold {
		return
	}
	resolution.Price = 0
	resolution.Tax = 0
	resolution.FreeShipping = true
}
