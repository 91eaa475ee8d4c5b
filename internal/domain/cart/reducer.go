package cart

import (
	"slices"
	"time"

	"github.com/xenking/kart-storefront/internal/coupon"
)

// Command is a cart state transition request.
type Command interface {
	command() string
}

// Hydrate replaces the items with those loaded from storage and ends the
// loading phase.
type Hydrate struct {
	Items []Item
}

// AddItem merges Quantity into the line with the same key, or appends Item
// stamped with At.
type AddItem struct {
	Item     Item
	Quantity int
	At       time.Time
}

// RemoveItem deletes the line with Key, if any.
type RemoveItem struct {
	Key Key
}

// UpdateQuantity sets the quantity of the line with Key. A quantity of zero
// or less removes the line.
type UpdateQuantity struct {
	Key      Key
	Quantity int
}

// Clear empties the items. Coupon and shipping are kept.
type Clear struct{}

// ApplyCoupon replaces the active coupon.
type ApplyCoupon struct {
	Coupon coupon.Coupon
}

// RemoveCoupon clears the active coupon.
type RemoveCoupon struct{}

// SetShipping replaces the shipping selection.
type SetShipping struct {
	Shipping Shipping
}

func (Hydrate) command() string        { return "hydrate" }
func (AddItem) command() string        { return "add_item" }
func (RemoveItem) command() string     { return "remove_item" }
func (UpdateQuantity) command() string { return "update_quantity" }
func (Clear) command() string          { return "clear" }
func (ApplyCoupon) command() string    { return "apply_coupon" }
func (RemoveCoupon) command() string   { return "remove_coupon" }
func (SetShipping) command() string    { return "set_shipping" }

// Reduce returns the state that results from applying cmd to s.
//
// Reduce is pure and total. It never modifies s.Items in place, so states
// returned earlier remain valid snapshots.
func Reduce(s State, cmd Command) State {
	switch c := cmd.(type) {
	case Hydrate:
		s.Items = normalize(c.Items)
		s.Loading = false
	case AddItem:
		qty := max(c.Quantity, 1)
		if i := s.index(c.Item.Key()); i >= 0 {
			s.Items = slices.Clone(s.Items)
			s.Items[i].Quantity += qty
			break
		}
		item := c.Item
		item.Quantity = qty
		item.AddedAt = c.At
		s.Items = append(slices.Clip(s.Items), item)
	case RemoveItem:
		if i := s.index(c.Key); i >= 0 {
			s.Items = slices.Delete(slices.Clone(s.Items), i, i+1)
		}
	case UpdateQuantity:
		if c.Quantity <= 0 {
			return Reduce(s, RemoveItem{Key: c.Key})
		}
		if i := s.index(c.Key); i >= 0 {
			s.Items = slices.Clone(s.Items)
			s.Items[i].Quantity = c.Quantity
		}
	case Clear:
		s.Items = nil
	case ApplyCoupon:
		cp := c.Coupon
		s.Coupon = &cp
	case RemoveCoupon:
		s.Coupon = nil
	case SetShipping:
		sh := c.Shipping
		s.Shipping = &sh
	}
	return s
}

// normalize enforces the item invariants on data read from storage:
// quantities are at least 1 and keys are unique (duplicates are merged into
// the first occurrence).
func normalize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it.Quantity = max(it.Quantity, 1)
		if i := slices.IndexFunc(out, func(o Item) bool { return o.Key() == it.Key() }); i >= 0 {
			out[i].Quantity += it.Quantity
			continue
		}
		out = append(out, it)
	}
	return out
}
