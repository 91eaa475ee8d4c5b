// Package catalog describes the live product data the host reads before it
// hands snapshots to the cart and wishlist stores.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Stock        int             `json:"stock"`
	Weight       decimal.Decimal `json:"weight"`
	Discontinued bool            `json:"discontinued"`
	Variants     []Variant       `json:"variants,omitempty"`
}

// Variant is a purchasable option of a product, e.g. a size. Zero fields fall
// back to the product's values.
type Variant struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock *int            `json:"stock,omitempty"`
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantNotFoundError indicates a product exists but has no such variant.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return "variant " + e.VariantID + " of product " + e.ProductID + " not found"
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
}

// Offer is what a shopper is offered for a product or one of its variants.
type Offer struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

// Offer resolves the name, price and stock of variantID. An empty variantID
// selects the product itself.
func (p *Product) Offer(variantID string) (Offer, error) {
	o := Offer{Name: p.Name, Price: p.Price, Stock: p.Stock}
	if variantID == "" {
		return o, nil
	}

	v, ok := p.Variant(variantID)
	if !ok {
		return Offer{}, &VariantNotFoundError{ProductID: p.ID, VariantID: variantID}
	}
	if v.Name != "" {
		o.Name = p.Name + " (" + v.Name + ")"
	}
	if !v.Price.IsZero() {
		o.Price = v.Price
	}
	if v.Stock != nil {
		o.Stock = *v.Stock
	}
	return o, nil
}
