package wishlist

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRecentLimit is the number of items RecentlyAdded callers usually
// ask for.
const DefaultRecentLimit = 5

// TotalValue returns the sum of the item prices.
func TotalValue(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return total
}

// RecentlyAdded returns up to limit items, newest first. A limit of zero or
// less returns nothing.
func RecentlyAdded(items []Item, limit int) []Item {
	if limit <= 0 {
		return []Item{}
	}
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b Item) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GroupByCategory buckets items by category. Items without a category land
// under OtherCategory.
func GroupByCategory(items []Item) map[string][]Item {
	groups := make(map[string][]Item)
	for _, it := range items {
		key := cmp.Or(it.Category, OtherCategory)
		groups[key] = append(groups[key], it)
	}
	return groups
}

// AvailableItems returns the items in stock and not discontinued. Items of
// unknown stock are not available.
func AvailableItems(items []Item) []Item {
	return filter(items, Item.Available)
}

// UnavailableItems is the complement of AvailableItems.
func UnavailableItems(items []Item) []Item {
	return filter(items, func(it Item) bool { return !it.Available() })
}

// PriceDropItems returns the items now cheaper than when they were saved.
func PriceDropItems(items []Item) []Item {
	return filter(items, func(it Item) bool {
		return it.PriceAtAdd.Valid && it.Price.LessThan(it.PriceAtAdd.Decimal)
	})
}

// BackInStockItems returns the items that ran out of stock at some point and
// are in stock again.
func BackInStockItems(items []Item) []Item {
	return filter(items, func(it Item) bool {
		return it.WasOutOfStock && it.InStock()
	})
}

func filter(items []Item, keep func(Item) bool) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Export is a serializable snapshot of a wishlist for download or sharing.
type Export struct {
	Items      []Item          `json:"items"`
	ExportDate time.Time       `json:"exportDate"`
	TotalItems int             `json:"totalItems"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// NewExport builds the export of items taken at at.
func NewExport(items []Item, at time.Time) Export {
	return Export{
		Items:      append(make([]Item, 0, len(items)), items...),
		ExportDate: at,
		TotalItems: len(items),
		TotalValue: TotalValue(items),
	}
}
