// Package cart implements the shopping-cart state machine.
//
// The package is split into a pure layer (State, Command, Reduce and the
// Totals/Weight/Validate calculators) and a command layer (Store) that runs
// a transition, then dispatches persistence and notification side effects.
package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/coupon"
)

// Key identifies a cart line. An empty VariantID means the product has no
// variant.
type Key struct {
	ProductID string
	VariantID string
}

// Item is a cart line. UnitPrice and StockAvailable are snapshots taken when
// the item was added; they are never refreshed by the cart itself.
type Item struct {
	ProductID      string          `json:"productId"`
	VariantID      string          `json:"variantId,omitempty"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	StockAvailable int             `json:"stockAvailable"`
	Weight         decimal.Decimal `json:"weight"`
	Discontinued   bool            `json:"discontinued,omitempty"`
	AddedAt        time.Time       `json:"addedAt"`
}

// Key returns the uniqueness key of the item.
func (i Item) Key() Key {
	return Key{ProductID: i.ProductID, VariantID: i.VariantID}
}

// LineTotal returns UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping is the selected shipping option.
type Shipping struct {
	Cost   decimal.Decimal `json:"cost"`
	Method string          `json:"method,omitempty"`
}

// State is the full cart state. Items keep insertion order.
type State struct {
	Items    []Item
	Loading  bool
	Coupon   *coupon.Coupon
	Shipping *Shipping
}

// NewState returns the state of a cart that has not been hydrated yet.
func NewState() State {
	return State{Loading: true}
}

// Find returns the item stored under key.
func (s State) Find(key Key) (Item, bool) {
	if i := s.index(key); i >= 0 {
		return s.Items[i], true
	}
	return Item{}, false
}

func (s State) index(key Key) int {
	for i := range s.Items {
		if s.Items[i].Key() == key {
			return i
		}
	}
	return -1
}
