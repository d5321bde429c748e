package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

const snapshotCollection = "checkoutSnapshots"

// SnapshotRepository persists checkout snapshots within Firestore.
type SnapshotRepository struct {
	base     *pfirestore.BaseRepository[snapshotDocument]
	provider *pfirestore.Provider
}

// NewSnapshotRepository constructs a Firestore-backed snapshot repository.
func NewSnapshotRepository(provider *pfirestore.Provider) (*SnapshotRepository, error) {
	if provider == nil {
		return nil, errors.New("snapshot repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[snapshotDocument](provider, snapshotCollection, nil, nil)
	return &SnapshotRepository{base: base, provider: provider}, nil
}

// Create writes the initial snapshot document keyed by checkout ID.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	return r.write(ctx, snapshot, nil)
}

// Save rewrites the full snapshot document, optionally guarded by the last
// observed update time.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.Snapshot, expectedUpdate *time.Time) (domain.Snapshot, error) {
	return r.write(ctx, snapshot, expectedUpdate)
}

func (r *SnapshotRepository) write(ctx context.Context, snapshot domain.Snapshot, expectedUpdate *time.Time) (domain.Snapshot, error) {
	if r == nil || r.base == nil {
		return domain.Snapshot{}, errors.New("snapshot repository not initialised")
	}
	id := strings.TrimSpace(snapshot.CheckoutID)
	if id == "" {
		return domain.Snapshot{}, errors.New("snapshot repository: checkout id is required")
	}

	now := time.Now().UTC()
	createdAt := snapshot.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := encodeSnapshot(snapshot, createdAt, now)

	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Snapshot{}, err
		}
		err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			if !snap.UpdateTime.Equal(expectedUpdate.UTC()) {
				return status.Error(codes.FailedPrecondition, "checkout snapshot was modified concurrently")
			}
			return tx.Set(ref, doc)
		})
		if err != nil {
			return domain.Snapshot{}, pfirestore.WrapError("checkoutSnapshots.save", err)
		}
	} else {
		if _, err := r.base.Set(ctx, id, doc); err != nil {
			return domain.Snapshot{}, err
		}
	}

	saved := snapshot.Clone()
	saved.CreatedAt = createdAt
	saved.UpdatedAt = now
	return saved, nil
}

// Get loads the snapshot document for the given checkout ID.
func (r *SnapshotRepository) Get(ctx context.Context, checkoutID string) (domain.Snapshot, error) {
	if r == nil || r.base == nil {
		return domain.Snapshot{}, errors.New("snapshot repository not initialised")
	}
	id := strings.TrimSpace(checkoutID)
	if id == "" {
		return domain.Snapshot{}, errors.New("snapshot repository: checkout id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return decodeSnapshot(doc.ID, doc.Data, doc.UpdateTime), nil
}

// Delete removes the snapshot document once checkout completes.
func (r *SnapshotRepository) Delete(ctx context.Context, checkoutID string) error {
	if r == nil || r.base == nil {
		return errors.New("snapshot repository not initialised")
	}
	id := strings.TrimSpace(checkoutID)
	if id == "" {
		return errors.New("snapshot repository: checkout id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("checkoutSnapshots.delete", err)
	}
	return nil
}

func encodeSnapshot(snapshot domain.Snapshot, createdAt, updatedAt time.Time) snapshotDocument {
	doc := snapshotDocument{
		Order:     encodeOrder(snapshot.Order),
		Total:     encodeTotal(snapshot.Total),
		Items:     make([]lineItemDocument, 0, len(snapshot.Items)),
		Stepper:   encodeStepper(snapshot.Stepper),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	for _, item := range snapshot.Items {
		doc.Items = append(doc.Items, encodeLineItem(item))
	}
	return doc
}

func decodeSnapshot(id string, doc snapshotDocument, updateTime time.Time) domain.Snapshot {
	snapshot := domain.Snapshot{
		CheckoutID: id,
		Order:      decodeOrder(doc.Order),
		Total:      decodeTotal(doc.Total),
		Items:      make([]domain.CartLineItem, 0, len(doc.Items)),
		Stepper:    decodeStepper(doc.Stepper),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		snapshot.Items = append(snapshot.Items, decodeLineItem(item))
	}
	if !updateTime.IsZero() {
		snapshot.UpdatedAt = updateTime
	}
	return snapshot
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:           order.ID,
		TotalPrice:   order.TotalPrice,
		TaxAmount:    order.TaxAmount,
		Tip:          order.Tip,
		DeliveryTime: order.DeliveryTime,
		Attrs: orderAttributesDocument{
			ShippingTax:          order.Attrs.ShippingTax,
			ShippingRate:         order.Attrs.ShippingRate,
			OriginalShippingRate: order.Attrs.OriginalShippingRate,
			OriginalShippingTax:  order.Attrs.OriginalShippingTax,
			FreeShippingApplied:  order.Attrs.FreeShippingApplied,
			ServiceCode:          order.Attrs.ServiceCode,
			ServiceName:          order.Attrs.ServiceName,
			OriginalSubTotal:     order.Attrs.OriginalSubTotal,
			CheckoutInited:       order.Attrs.CheckoutInited,
			CheckoutCompleted:    order.Attrs.CheckoutCompleted,
		},
		CreatedAt: order.CreatedAt,
	}
	if order.Customer != nil {
		doc.Customer = &customerDocument{
			FirstName:      order.Customer.FirstName,
			LastName:       order.Customer.LastName,
			Email:          order.Customer.Email,
			Phone:          order.Customer.Phone,
			DateOfBirth:    order.Customer.DateOfBirth,
			ReferralSource: order.Customer.ReferralSource,
		}
	}
	doc.ShippingAddress = encodeAddress(order.ShippingAddress)
	doc.BillingAddress = encodeAddress(order.BillingAddress)
	for _, line := range order.Services {
		doc.Services = append(doc.Services, serviceLineDocument{
			ServiceID:  line.ServiceID,
			Method:     string(line.Method),
			Title:      line.Title,
			TotalPrice: line.TotalPrice,
			IsDelivery: line.IsDelivery,
		})
	}
	for _, discount := range order.Discounts {
		doc.Discounts = append(doc.Discounts, discountDocument{
			Code:  discount.Code,
			Title: discount.Title,
			Type:  string(discount.Type),
			Value: discount.Value,
		})
	}
	if order.PaymentMethod != nil {
		doc.PaymentMethod = &paymentMethodDocument{
			ID:    order.PaymentMethod.ID,
			Title: order.PaymentMethod.Title,
		}
	}
	return doc
}

func decodeOrder(doc orderDocument) domain.Order {
	order := domain.Order{
		ID:           doc.ID,
		TotalPrice:   doc.TotalPrice,
		TaxAmount:    doc.TaxAmount,
		Tip:          doc.Tip,
		DeliveryTime: doc.DeliveryTime,
		Attrs: domain.OrderAttributes{
			ShippingTax:          doc.Attrs.ShippingTax,
			ShippingRate:         doc.Attrs.ShippingRate,
			OriginalShippingRate: doc.Attrs.OriginalShippingRate,
			OriginalShippingTax:  doc.Attrs.OriginalShippingTax,
			FreeShippingApplied:  doc.Attrs.FreeShippingApplied,
			ServiceCode:          doc.Attrs.ServiceCode,
			ServiceName:          doc.Attrs.ServiceName,
			OriginalSubTotal:     doc.Attrs.OriginalSubTotal,
			CheckoutInited:       doc.Attrs.CheckoutInited,
			CheckoutCompleted:    doc.Attrs.CheckoutCompleted,
		},
		CreatedAt: doc.CreatedAt,
	}
	if doc.Customer != nil {
		order.Customer = &domain.Customer{
			FirstName:      doc.Customer.FirstName,
			LastName:       doc.Customer.LastName,
			Email:          doc.Customer.Email,
			Phone:          doc.Customer.Phone,
			DateOfBirth:    doc.Customer.DateOfBirth,
			ReferralSource: doc.Customer.ReferralSource,
		}
	}
	order.ShippingAddress = decodeAddress(doc.ShippingAddress)
	order.BillingAddress = decodeAddress(doc.BillingAddress)
	for _, line := range doc.Services {
		order.Services = append(order.Services, domain.ServiceLine{
			ServiceID:  line.ServiceID,
			Method:     domain.DeliveryMethod(line.Method),
			Title:      line.Title,
			TotalPrice: line.TotalPrice,
			IsDelivery: line.IsDelivery,
		})
	}
	for _, discount := range doc.Discounts {
		order.Discounts = append(order.Discounts, domain.Discount{
			Code:  discount.Code,
			Title: discount.Title,
			Type:  domain.DiscountType(discount.Type),
			Value: discount.Value,
		})
	}
	if doc.PaymentMethod != nil {
		order.PaymentMethod = &domain.PaymentMethod{
			ID:    doc.PaymentMethod.ID,
			Title: doc.PaymentMethod.Title,
		}
	}
	return order
}

func encodeAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
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

func decodeAddress(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		AddressLine1: doc.AddressLine1,
		AddressLine2: doc.AddressLine2,
		City:         doc.City,
		Province:     doc.Province,
		PostalCode:   doc.PostalCode,
		Phone:        doc.Phone,
	}
}

func encodeTotal(total domain.Total) totalDocument {
	return totalDocument{
		Price:            total.Price,
		ItemsSubTotal:    subTotalDocument{Price: total.ItemsSubTotal.Price, Qty: total.ItemsSubTotal.Qty},
		ServicesSubTotal: subTotalDocument{Price: total.ServicesSubTotal.Price, Qty: total.ServicesSubTotal.Qty},
		Discount:         total.Discount,
		TotalTaxAmount:   total.Tax.TotalTaxAmount,
		ShippingTaxes:    total.Tax.Shipping.ShippingTaxes,
	}
}

func decodeTotal(doc totalDocument) domain.Total {
	return domain.Total{
		Price:            doc.Price,
		ItemsSubTotal:    domain.SubTotal{Price: doc.ItemsSubTotal.Price, Qty: doc.ItemsSubTotal.Qty},
		ServicesSubTotal: domain.SubTotal{Price: doc.ServicesSubTotal.Price, Qty: doc.ServicesSubTotal.Qty},
		Discount:         doc.Discount,
		Tax: domain.TaxTotals{
			TotalTaxAmount: doc.TotalTaxAmount,
			Shipping:       domain.ShippingTaxes{ShippingTaxes: doc.ShippingTaxes},
		},
	}
}

func encodeStepper(stepper domain.Stepper) stepperDocument {
	doc := stepperDocument{CurrentStep: string(stepper.CurrentStep)}
	for _, step := range stepper.FilledSteps {
		doc.FilledSteps = append(doc.FilledSteps, string(step))
	}
	for _, step := range stepper.Steps {
		doc.Steps = append(doc.Steps, string(step))
	}
	return doc
}

func decodeStepper(doc stepperDocument) domain.Stepper {
	stepper := domain.Stepper{CurrentStep: domain.Step(doc.CurrentStep), FilledSteps: []domain.Step{}}
	for _, step := range doc.FilledSteps {
		stepper.FilledSteps = append(stepper.FilledSteps, domain.Step(step))
	}
	for _, step := range doc.Steps {
		stepper.Steps = append(stepper.Steps, domain.Step(step))
	}
	if len(stepper.Steps) == 0 {
		stepper.Steps = append([]domain.Step(nil), domain.CheckoutSteps...)
	}
	return stepper
}

func encodeLineItem(item domain.CartLineItem) lineItemDocument {
	doc := lineItemDocument{
		ProductID:      item.ProductID,
		SKU:            item.SKU,
		Title:          item.Title,
		UnitPrice:      item.UnitPrice,
		Quantity:       item.Quantity,
		IsBeverage:     item.IsBeverage,
		Classification: item.Classification,
		ThcGrams:       item.ThcGrams,
		WeightGrams:    item.WeightGrams,
	}
	if item.DiscountedUnitPrice != nil {
		price := *item.DiscountedUnitPrice
		doc.DiscountedUnitPrice = &price
	}
	return doc
}

func decodeLineItem(doc lineItemDocument) domain.CartLineItem {
	item := domain.CartLineItem{
		ProductID:      doc.ProductID,
		SKU:            doc.SKU,
		Title:          doc.Title,
		UnitPrice:      doc.UnitPrice,
		Quantity:       doc.Quantity,
		IsBeverage:     doc.IsBeverage,
		Classification: doc.Classification,
		ThcGrams:       doc.ThcGrams,
		WeightGrams:    doc.WeightGrams,
	}
	if doc.DiscountedUnitPrice != nil {
		price := *doc.DiscountedUnitPrice
		item.DiscountedUnitPrice = &price
	}
	return item
}

type snapshotDocument struct {
	Order     orderDocument      `firestore:"order"`
	Total     totalDocument      `firestore:"total"`
	Items     []lineItemDocument `firestore:"items"`
	Stepper   stepperDocument    `firestore:"stepper"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type orderDocument struct {
	ID              string                  `firestore:"id"`
	Customer        *customerDocument       `firestore:"customer,omitempty"`
	ShippingAddress *addressDocument        `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument        `firestore:"billingAddress,omitempty"`
	Services        []serviceLineDocument   `firestore:"services,omitempty"`
	Discounts       []discountDocument      `firestore:"discounts,omitempty"`
	PaymentMethod   *paymentMethodDocument  `firestore:"paymentMethod,omitempty"`
	TotalPrice      int64                   `firestore:"totalPrice"`
	TaxAmount       int64                   `firestore:"taxAmount"`
	Tip             int64                   `firestore:"tip"`
	DeliveryTime    string                  `firestore:"deliveryTime,omitempty"`
	Attrs           orderAttributesDocument `firestore:"attrs"`
	CreatedAt       time.Time               `firestore:"createdAt"`
}

type customerDocument struct {
	FirstName      string    `firestore:"firstName"`
	LastName       string    `firestore:"lastName"`
	Email          string    `firestore:"email"`
	Phone          string    `firestore:"phone"`
	DateOfBirth    time.Time `firestore:"dateOfBirth"`
	ReferralSource string    `firestore:"referralSource,omitempty"`
}

type addressDocument struct {
	FirstName    string `firestore:"firstName"`
	LastName     string `firestore:"lastName"`
	AddressLine1 string `firestore:"addressLine1"`
	AddressLine2 string `firestore:"addressLine2,omitempty"`
	City         string `firestore:"city"`
	Province     string `firestore:"province"`
	PostalCode   string `firestore:"postalCode"`
	Phone        string `firestore:"phone,omitempty"`
}

type serviceLineDocument struct {
	ServiceID  int    `firestore:"serviceId"`
	Method     string `firestore:"method"`
	Title      string `firestore:"title"`
	TotalPrice int64  `firestore:"totalPrice"`
	IsDelivery bool   `firestore:"isDelivery"`
}

type discountDocument struct {
	Code  string `firestore:"code"`
	Title string `firestore:"title"`
	Type  string `firestore:"type"`
	Value int64  `firestore:"value"`
}

type paymentMethodDocument struct {
	ID    string `firestore:"id"`
	Title string `firestore:"title"`
}

type orderAttributesDocument struct {
	ShippingTax          int64  `firestore:"shippingTax"`
	ShippingRate         int64  `firestore:"shippingRate"`
	OriginalShippingRate int64  `firestore:"originalShippingRate"`
	OriginalShippingTax  int64  `firestore:"originalShippingTax"`
	FreeShippingApplied  bool   `firestore:"freeShippingApplied"`
	ServiceCode          string `firestore:"serviceCode,omitempty"`
	ServiceName          string `firestore:"serviceName,omitempty"`
	OriginalSubTotal     int64  `firestore:"originalSubTotal"`
	CheckoutInited       bool   `firestore:"checkoutInited"`
	CheckoutCompleted    bool   `firestore:"checkoutCompleted"`
}

type totalDocument struct {
	Price            int64            `firestore:"price"`
	ItemsSubTotal    subTotalDocument `firestore:"itemsSubTotal"`
	ServicesSubTotal subTotalDocument `firestore:"servicesSubTotal"`
	Discount         int64            `firestore:"discount"`
	TotalTaxAmount   int64            `firestore:"totalTaxAmount"`
	ShippingTaxes    int64            `firestore:"shippingTaxes"`
}

type subTotalDocument struct {
	Price int64 `firestore:"price"`
	Qty   int   `firestore:"qty"`
}

type stepperDocument struct {
	FilledSteps []string `firestore:"filledSteps"`
	CurrentStep string   `firestore:"currentStep"`
	Steps       []string `firestore:"steps"`
}

type lineItemDocument struct {
	ProductID           string  `firestore:"productId"`
	SKU                 string  `firestore:"sku"`
	Title               string  `firestore:"title"`
	UnitPrice           int64   `firestore:"unitPrice"`
	DiscountedUnitPrice *int64  `firestore:"discountedUnitPrice,omitempty"`
	Quantity            int     `firestore:"quantity"`
	IsBeverage          bool    `firestore:"isBeverage"`
	Classification      string  `firestore:"classification,omitempty"`
	ThcGrams            float64 `firestore:"thcGrams,omitempty"`
	WeightGrams         int     `firestore:"weightGrams,omitempty"`
}

var _ repositories.SnapshotRepository = (*SnapshotRepository)(nil)
