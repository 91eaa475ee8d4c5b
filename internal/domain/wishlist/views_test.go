package wishlist

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func TestViews(t *testing.T) {
	inStock := item("in", 100)
	inStock.Category = "shoes"

	soldOut := item("soldout", 200)
	soldOut.StockAvailable = stock(0)
	soldOut.Category = "shoes"

	unknown := item("unknown", 300)
	unknown.StockAvailable = nil

	gone := item("gone", 400)
	gone.Discontinued = true
	gone.Category = "hats"

	drop := item("drop", 50)
	drop.PriceAtAdd = decimal.NewNullDecimal(decimal.NewFromInt(80))

	restocked := item("restocked", 10)
	restocked.WasOutOfStock = true

	items := []Item{inStock, soldOut, unknown, gone, drop, restocked}

	t.Run("Available", func(t *testing.T) {
		assert.Equal(t, []string{"in", "drop", "restocked"}, productIDs(AvailableItems(items)))
	})
	t.Run("Unavailable", func(t *testing.T) {
		assert.Equal(t, []string{"soldout", "unknown", "gone"}, productIDs(UnavailableItems(items)))
	})
	t.Run("PriceDrop", func(t *testing.T) {
		assert.Equal(t, []string{"drop"}, productIDs(PriceDropItems(items)))
	})
	t.Run("BackInStock", func(t *testing.T) {
		assert.Equal(t, []string{"restocked"}, productIDs(BackInStockItems(items)))
	})
	t.Run("GroupByCategory", func(t *testing.T) {
		groups := GroupByCategory(items)
		require.Len(t, groups, 3)
		assert.Equal(t, []string{"in", "soldout"}, productIDs(groups["shoes"]))
		assert.Equal(t, []string{"gone"}, productIDs(groups["hats"]))
		assert.Equal(t, []string{"unknown", "drop", "restocked"}, productIDs(groups[OtherCategory]))
	})
	t.Run("TotalValue", func(t *testing.T) {
		assert.True(t, TotalValue(items).Equal(decimal.NewFromInt(1060)))
		assert.True(t, TotalValue(nil).IsZero())
	})
}

func TestRecentlyAdded(t *testing.T) {
	var items []Item
	for i, id := range []string{"a", "b", "c", "d"} {
		it := item(id, 1)
		it.AddedAt = testTime.Add(time.Duration(i) * time.Minute)
		items = append(items, it)
	}

	for _, tt := range []struct {
		limit int
		want  []string
	}{
		{limit: 2, want: []string{"d", "c"}},
		{limit: 10, want: []string{"d", "c", "b", "a"}},
	} {
		assert.Equal(t, tt.want, productIDs(RecentlyAdded(items, tt.limit)), "limit %d", tt.limit)
	}
	assert.Empty(t, RecentlyAdded(items, 0))
	assert.Empty(t, RecentlyAdded(items, -1))
	assert.Equal(t, "a", items[0].ProductID, "input order is untouched")
}

func TestNewExport(t *testing.T) {
	e := NewExport([]Item{item("p1", 100), item("p2", 250)}, testTime)
	assert.Equal(t, 2, e.TotalItems)
	assert.True(t, e.TotalValue.Equal(decimal.NewFromInt(350)))
	assert.Equal(t, testTime, e.ExportDate)

	empty := NewExport(nil, testTime)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.TotalItems)
}
