package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository reads storefront carts from Firestore.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the cart for the given cart ID.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:        doc.ID,
		Items:     make([]domain.CartLineItem, 0, len(doc.Data.Items)),
		Subtotal:  doc.Data.Subtotal,
		TaxAmount: doc.Data.TaxAmount,
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, decodeLineItem(item))
	}
	return cart, nil
}

type cartDocument struct {
	Items     []lineItemDocument `firestore:"items"`
	Subtotal  int64              `firestore:"subtotal"`
	TaxAmount int64              `firestore:"taxAmount"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
