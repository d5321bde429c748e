package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/platform/httpx"
	"github.com/coastalcannabis/checkout-api/internal/services"
)

const (
	maxCheckoutRequestBody = 8 * 1024
	dateOfBirthLayout      = "2006-01-02"

	couponRateLimit  = 10
	couponRateWindow = time.Minute
)

// CheckoutHandlers exposes the guest checkout flow.
type CheckoutHandlers struct {
	checkout      services.CheckoutService
	couponLimiter rateLimiter
}

// NewCheckoutHandlers constructs checkout handlers. Coupon submissions are
// rate limited per checkout to slow down code guessing.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout:      checkout,
		couponLimiter: newSimpleRateLimiter(couponRateLimit, couponRateWindow, nil),
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/init", h.initCheckout)
	r.Route("/{checkoutId}", func(cr chi.Router) {
		cr.Get("/", h.getCheckout)
		cr.Post("/contact", h.submitContactInfo)
		cr.Post("/shipping", h.submitShipping)
		cr.Post("/coupon", h.applyCoupon)
		cr.Post("/rates", h.rateQuotes)
		cr.Get("/delivery-times", h.deliveryTimes)
		cr.Post("/payment", h.submitPayment)
	})
}

type initCheckoutRequest struct {
	CartID string `json:"cartId"`
}

type contactInfoRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
}

type addressPayload struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	Province     string `json:"province,omitempty"`
	PostalCode   string `json:"postalCode"`
	Phone        string `json:"phone,omitempty"`
}

type rateQuotePayload struct {
	ServiceCode string `json:"serviceCode"`
	ServiceName string `json:"serviceName,omitempty"`
	Price       int64  `json:"price"`
	Taxes       int64  `json:"taxes"`
	Adjustments int64  `json:"adjustments,omitempty"`
}

type shippingRequest struct {
	Method  string            `json:"method"`
	Address *addressPayload   `json:"address,omitempty"`
	Quote   *rateQuotePayload `json:"quote,omitempty"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type ratesRequest struct {
	PostalCode string `json:"postalCode"`
}

type paymentRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
	CardToken       string `json:"cardToken,omitempty"`
	Tip             int64  `json:"tip"`
	DeliveryTime    string `json:"deliveryTime,omitempty"`
}

func (h *CheckoutHandlers) initCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req initCheckoutRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartId is required", http.StatusBadRequest))
		return
	}

	snapshot, err := h.checkout.Init(ctx, cartID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newSnapshotResponse(snapshot))
}

func (h *CheckoutHandlers) getCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	checkoutID := chi.URLParam(r, "checkoutId")

	snapshot, err := h.checkout.Get(ctx, checkoutID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := newSnapshotResponse(snapshot)
	if step := strings.TrimSpace(r.URL.Query().Get("step")); step != "" {
		gate, err := h.checkout.Gate(ctx, checkoutID, domain.Step(step))
		if err != nil {
			writeCheckoutError(ctx, w, err)
			return
		}
		payload.Gate = &stepGatePayload{
			Step:     step,
			Allowed:  gate.Allowed,
			Redirect: string(gate.Redirect),
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) submitContactInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req contactInfoRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	var dateOfBirth time.Time
	if raw := strings.TrimSpace(req.DateOfBirth); raw != "" {
		parsed, err := time.Parse(dateOfBirthLayout, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "dateOfBirth must be formatted YYYY-MM-DD", http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"field": "dateOfBirth"}))
			return
		}
		dateOfBirth = parsed
	}

	snapshot, err := h.checkout.SubmitContactInfo(ctx, services.ContactInfoCommand{
		CheckoutID:  chi.URLParam(r, "checkoutId"),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: dateOfBirth,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSnapshotResponse(snapshot))
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req shippingRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	method := domain.DeliveryMethod(strings.TrimSpace(req.Method))
	switch method {
	case domain.MethodSelfPickup, domain.MethodDelivery, domain.MethodShipping:
	default:
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "method must be selfPickup, delivery or shipping", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"field": "method"}))
		return
	}

	cmd := services.ShippingCommand{
		CheckoutID: chi.URLParam(r, "checkoutId"),
		Method:     method,
	}
	if req.Address != nil {
		cmd.Address = &domain.Address{
			FirstName:    strings.TrimSpace(req.Address.FirstName),
			LastName:     strings.TrimSpace(req.Address.LastName),
			AddressLine1: strings.TrimSpace(req.Address.AddressLine1),
			AddressLine2: strings.TrimSpace(req.Address.AddressLine2),
			City:         strings.TrimSpace(req.Address.City),
			Province:     strings.TrimSpace(req.Address.Province),
			PostalCode:   strings.TrimSpace(req.Address.PostalCode),
			Phone:        strings.TrimSpace(req.Address.Phone),
		}
	}
	if req.Quote != nil {
		cmd.Quote = &services.RateQuote{
			ServiceCode: strings.TrimSpace(req.Quote.ServiceCode),
			ServiceName: strings.TrimSpace(req.Quote.ServiceName),
			Price:       req.Quote.Price,
			Taxes:       req.Quote.Taxes,
			Adjustments: req.Quote.Adjustments,
		}
	}

	snapshot, err := h.checkout.SubmitShipping(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSnapshotResponse(snapshot))
}

func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	checkoutID := chi.URLParam(r, "checkoutId")
	if h.couponLimiter != nil && !h.couponLimiter.Allow(checkoutID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many coupon attempts; slow down", http.StatusTooManyRequests))
		return
	}

	var req couponRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	snapshot, err := h.checkout.ApplyCoupon(ctx, services.CouponCommand{
		CheckoutID: checkoutID,
		Code:       req.Code,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSnapshotResponse(snapshot))
}

func (h *CheckoutHandlers) rateQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req ratesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	quotes, err := h.checkout.RateQuotes(ctx, chi.URLParam(r, "checkoutId"), req.PostalCode)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := struct {
		Quotes []rateQuotePayload `json:"quotes"`
	}{Quotes: make([]rateQuotePayload, 0, len(quotes))}
	for _, quote := range quotes {
		payload.Quotes = append(payload.Quotes, rateQuotePayload{
			ServiceCode: quote.ServiceCode,
			ServiceName: quote.ServiceName,
			Price:       quote.Price,
			Taxes:       quote.Taxes,
			Adjustments: quote.Adjustments,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) deliveryTimes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	availability, err := h.checkout.DeliveryTimes(ctx, chi.URLParam(r, "checkoutId"))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := struct {
		Date    string   `json:"date"`
		Slots   []string `json:"slots"`
		ASAP    bool     `json:"asap"`
		NextDay bool     `json:"nextDay"`
	}{
		Date:    formatCivilDate(availability.Date),
		Slots:   availability.Labels,
		ASAP:    availability.ASAP,
		NextDay: availability.NextDay,
	}
	if payload.Slots == nil {
		payload.Slots = []string{}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req paymentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	result, err := h.checkout.SubmitPayment(ctx, services.PaymentCommand{
		CheckoutID:      chi.URLParam(r, "checkoutId"),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		CardToken:       req.CardToken,
		Tip:             req.Tip,
		DeliveryTime:    req.DeliveryTime,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := struct {
		OrderID  string            `json:"orderId"`
		EventID  string            `json:"eventId,omitempty"`
		Snapshot *snapshotResponse `json:"order"`
	}{
		OrderID:  result.OrderID,
		EventID:  result.EventID,
		Snapshot: newSnapshotResponse(result.Snapshot),
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// decodeBody reads and unmarshals the request body, writing the error response
// itself on failure.
func (h *CheckoutHandlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// validationFields maps validation sentinels to the offending request field.
var validationFields = map[error]string{
	services.ErrContactInfoIncomplete:   "contactInfo",
	services.ErrUnderage:                "dateOfBirth",
	services.ErrInvalidPostalCode:       "postalCode",
	services.ErrAddressRequired:         "address",
	services.ErrMissingAddressField:     "address",
	services.ErrQuoteRequired:           "quote",
	services.ErrQuoteNotOffered:         "quote",
	services.ErrCouponInvalidCode:       "code",
	services.ErrCouponAlreadyUsed:       "code",
	services.ErrDeliveryTimeRequired:    "deliveryTime",
	services.ErrDeliveryTimeUnavailable: "deliveryTime",
	services.ErrTipInvalid:              "tip",
	services.ErrPaymentMethodInvalid:    "paymentMethodId",
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	for sentinel, field := range validationFields {
		if errors.Is(err, sentinel) {
			httpx.WriteError(ctx, w, httpx.NewError("validation_failed", sentinel.Error(), http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"field": field}))
			return
		}
	}

	switch {
	case errors.Is(err, services.ErrCheckoutNotFound), errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_completed", "checkout has already been completed", http.StatusGone))
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusConflict))
	case errors.Is(err, services.ErrStepNotReachable):
		httpx.WriteError(ctx, w, httpx.NewError("step_not_reachable", "earlier checkout steps must be completed first", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "checkout changed concurrently; reload and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInvariant):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_invariant", "checkout totals could not be reconciled", http.StatusConflict))
	case errors.Is(err, services.ErrTaxUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("tax_unavailable", "tax service unavailable; retry shortly", http.StatusBadGateway))
	case errors.Is(err, services.ErrRatesUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rates_unavailable", "shipping rates unavailable; retry shortly", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment method could not be verified", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

func formatCivilDate(date domain.CivilDate) string {
	if date.Year == 0 {
		return ""
	}
	return time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC).Format(dateOfBirthLayout)
}
