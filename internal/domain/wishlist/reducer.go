package wishlist

import (
	"slices"
	"time"

	"github.com/xenking/kart-storefront/internal/identity"
)

// Command is a wishlist state transition request.
type Command interface {
	command() string
}

// Hydrate replaces the whole state with the items stored for Identity. The
// previous items are discarded.
type Hydrate struct {
	Identity identity.Identity
	Items    []Item
}

// AddItem appends Item stamped with At unless its product is already saved.
type AddItem struct {
	Item Item
	At   time.Time
}

// RemoveItem deletes the item of ProductID, if any.
type RemoveItem struct {
	ProductID string
}

// Clear empties the items.
type Clear struct{}

// Refresh overwrites the price, stock and discontinued snapshots of saved
// items with fresher values. Items not saved are ignored.
type Refresh struct {
	Items []Item
}

func (Hydrate) command() string    { return "hydrate" }
func (AddItem) command() string    { return "add_item" }
func (RemoveItem) command() string { return "remove_item" }
func (Clear) command() string      { return "clear" }
func (Refresh) command() string    { return "refresh" }

// Reduce returns the state that results from applying cmd to s. It never
// modifies s.Items in place.
func Reduce(s State, cmd Command) State {
	switch c := cmd.(type) {
	case Hydrate:
		return State{Items: dedupe(c.Items), Identity: c.Identity}
	case AddItem:
		if s.index(c.Item.ProductID) >= 0 {
			break
		}
		it := c.Item
		it.AddedAt = c.At
		if !it.PriceAtAdd.Valid {
			it.PriceAtAdd.Decimal = it.Price
			it.PriceAtAdd.Valid = true
		}
		if it.StockAvailable != nil && *it.StockAvailable <= 0 {
			it.WasOutOfStock = true
		}
		s.Items = append(slices.Clip(s.Items), it)
	case RemoveItem:
		if i := s.index(c.ProductID); i >= 0 {
			s.Items = slices.Delete(slices.Clone(s.Items), i, i+1)
		}
	case Clear:
		s.Items = nil
	case Refresh:
		items := slices.Clone(s.Items)
		for _, fresh := range c.Items {
			i := s.index(fresh.ProductID)
			if i < 0 {
				continue
			}
			it := &items[i]
			it.Price = fresh.Price
			it.Discontinued = fresh.Discontinued
			if fresh.StockAvailable != nil {
				stock := *fresh.StockAvailable
				it.StockAvailable = &stock
				if stock <= 0 {
					it.WasOutOfStock = true
				}
			}
		}
		s.Items = items
	}
	return s
}

// dedupe keeps the first item of each product.
func dedupe(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if slices.ContainsFunc(out, func(o Item) bool { return o.ProductID == it.ProductID }) {
			continue
		}
		out = append(out, it)
	}
	return out
}
