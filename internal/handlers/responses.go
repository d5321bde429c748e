package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds the allowed size")
)

type lineItemPayload struct {
	ProductID           string `json:"productId"`
	SKU                 string `json:"sku,omitempty"`
	Title               string `json:"title,omitempty"`
	UnitPrice           int64  `json:"unitPrice"`
	DiscountedUnitPrice *int64 `json:"discountedUnitPrice,omitempty"`
	Quantity            int    `json:"quantity"`
	IsBeverage          bool   `json:"isBeverage,omitempty"`
}

type customerPayload struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

type serviceLinePayload struct {
	ServiceID  int    `json:"serviceId"`
	Method     string `json:"method"`
	Title      string `json:"title"`
	TotalPrice int64  `json:"totalPrice"`
	IsDelivery bool   `json:"isDelivery"`
}

type discountPayload struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

type paymentMethodPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type subTotalPayload struct {
	Price int64 `json:"price"`
	Qty   int   `json:"qty"`
}

type taxTotalsPayload struct {
	TotalTaxAmount int64 `json:"totalTaxAmount"`
	ShippingTaxes  int64 `json:"shippingTaxes"`
}

type totalPayload struct {
	Price            int64            `json:"price"`
	ItemsSubTotal    subTotalPayload  `json:"itemsSubTotal"`
	ServicesSubTotal subTotalPayload  `json:"servicesSubTotal"`
	Discount         int64            `json:"discount"`
	Tax              taxTotalsPayload `json:"tax"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	Customer        *customerPayload      `json:"customer,omitempty"`
	ShippingAddress *addressPayload       `json:"shippingAddress,omitempty"`
	Services        []serviceLinePayload  `json:"services"`
	Discounts       []discountPayload     `json:"discounts"`
	PaymentMethod   *paymentMethodPayload `json:"paymentMethod,omitempty"`
	TotalPrice      int64                 `json:"totalPrice"`
	TaxAmount       int64                 `json:"taxAmount"`
	Tip             int64                 `json:"tip,omitempty"`
	DeliveryTime    string                `json:"deliveryTime,omitempty"`
	FreeShipping    bool                  `json:"freeShipping"`
}

type stepperPayload struct {
	FilledSteps []string `json:"filledSteps"`
	CurrentStep string   `json:"currentStep"`
	Steps       []string `json:"steps"`
}

type stepGatePayload struct {
	Step     string `json:"step"`
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

type snapshotResponse struct {
	CheckoutID string            `json:"checkoutId"`
	Order      orderPayload      `json:"order"`
	Total      totalPayload      `json:"total"`
	Items      []lineItemPayload `json:"items"`
	Stepper    stepperPayload    `json:"stepper"`
	Gate       *stepGatePayload  `json:"gate,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`

	RemainingForFreeShipping int64 `json:"remainingForFreeShipping"`
}

func newSnapshotResponse(snapshot domain.Snapshot) *snapshotResponse {
	resp := &snapshotResponse{
		CheckoutID: snapshot.CheckoutID,
		Order: orderPayload{
			ID:           snapshot.Order.ID,
			Services:     make([]serviceLinePayload, 0, len(snapshot.Order.Services)),
			Discounts:    make([]discountPayload, 0, len(snapshot.Order.Discounts)),
			TotalPrice:   snapshot.Order.TotalPrice,
			TaxAmount:    snapshot.Order.TaxAmount,
			Tip:          snapshot.Order.Tip,
			DeliveryTime: snapshot.Order.DeliveryTime,
			FreeShipping: snapshot.Order.Attrs.FreeShippingApplied,
		},
		Total: totalPayload{
			Price:            snapshot.Total.Price,
			ItemsSubTotal:    subTotalPayload{Price: snapshot.Total.ItemsSubTotal.Price, Qty: snapshot.Total.ItemsSubTotal.Qty},
			ServicesSubTotal: subTotalPayload{Price: snapshot.Total.ServicesSubTotal.Price, Qty: snapshot.Total.ServicesSubTotal.Qty},
			Discount:         snapshot.Total.Discount,
			Tax: taxTotalsPayload{
				TotalTaxAmount: snapshot.Total.Tax.TotalTaxAmount,
				ShippingTaxes:  snapshot.Total.Tax.Shipping.ShippingTaxes,
			},
		},
		Items: make([]lineItemPayload, 0, len(snapshot.Items)),
		Stepper: stepperPayload{
			FilledSteps: stepsToStrings(snapshot.Stepper.FilledSteps),
			CurrentStep: string(snapshot.Stepper.CurrentStep),
			Steps:       stepsToStrings(snapshot.Stepper.Steps),
		},
	}
	resp.RemainingForFreeShipping = snapshot.RemainingForFreeShipping

	if customer := snapshot.Order.Customer; customer != nil {
		payload := customerPayload{
			FirstName: customer.FirstName,
			LastName:  customer.LastName,
			Email:     customer.Email,
			Phone:     customer.Phone,
		}
		if !customer.DateOfBirth.IsZero() {
			payload.DateOfBirth = customer.DateOfBirth.Format(dateOfBirthLayout)
		}
		resp.Order.Customer = &payload
	}
	if addr := snapshot.Order.ShippingAddress; addr != nil {
		resp.Order.ShippingAddress = &addressPayload{
			FirstName:    addr.FirstName,
			LastName:     addr.LastName,
			AddressLine1: addr.AddressLine1,
			AddressLine2: addr.AddressLine2,
			City:         addr.City,
			Province:     addr.Province,
			PostalCode:   addr.PostalCode,
			Phone:        addr.Phone,
		}
	}
	for _, line := range snapshot.Order.Services {
		resp.Order.Services = append(resp.Order.Services, serviceLinePayload{
			ServiceID:  line.ServiceID,
			Method:     string(line.Method),
			Title:      line.Title,
			TotalPrice: line.TotalPrice,
			IsDelivery: line.IsDelivery,
		})
	}
	for _, discount := range snapshot.Order.Discounts {
		resp.Order.Discounts = append(resp.Order.Discounts, discountPayload{
			Code:  discount.Code,
			Title: discount.Title,
			Type:  string(discount.Type),
			Value: discount.Value,
		})
	}
	if method := snapshot.Order.PaymentMethod; method != nil {
		resp.Order.PaymentMethod = &paymentMethodPayload{ID: method.ID, Title: method.Title}
	}

	for _, item := range snapshot.Items {
		payload := lineItemPayload{
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Title:      item.Title,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			IsBeverage: item.IsBeverage,
		}
		if item.DiscountedUnitPrice != nil {
			price := *item.DiscountedUnitPrice
			payload.DiscountedUnitPrice = &price
		}
		resp.Items = append(resp.Items, payload)
	}

	if !snapshot.UpdatedAt.IsZero() {
		resp.UpdatedAt = snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func stepsToStrings(steps []domain.Step) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, string(step))
	}
	return out
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCheckoutRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
