// Package wishlist implements the per-identity saved-items state machine and
// its derived views.
package wishlist

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/identity"
)

// OtherCategory is the GroupByCategory bucket of unclassified items.
const OtherCategory = "other"

// Item is a saved product. Price and StockAvailable are snapshots; a nil
// StockAvailable means the stock is unknown.
type Item struct {
	ProductID      string              `json:"productId"`
	Name           string              `json:"name"`
	Price          decimal.Decimal     `json:"price"`
	Category       string              `json:"category,omitempty"`
	StockAvailable *int                `json:"stockAvailable,omitempty"`
	Discontinued   bool                `json:"discontinued,omitempty"`
	AddedAt        time.Time           `json:"addedAt"`
	PriceAtAdd     decimal.NullDecimal `json:"priceAtAdd"`
	WasOutOfStock  bool                `json:"wasOutOfStock,omitempty"`
}

// InStock reports whether the stock is known and positive.
func (i Item) InStock() bool {
	return i.StockAvailable != nil && *i.StockAvailable > 0
}

// Available reports whether the item can be bought right now.
func (i Item) Available() bool {
	return i.InStock() && !i.Discontinued
}

// State is the wishlist of one identity. Items keep insertion order.
type State struct {
	Items    []Item
	Loading  bool
	Identity identity.Identity
}

// NewState returns the state of a wishlist that has not been hydrated yet.
func NewState() State {
	return State{Loading: true}
}

// Find returns the item saved for productID.
func (s State) Find(productID string) (Item, bool) {
	if i := s.index(productID); i >= 0 {
		return s.Items[i], true
	}
	return Item{}, false
}

func (s State) index(productID string) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
