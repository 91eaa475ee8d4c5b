package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/coupon"
)

// DefaultFreeShippingMinimum is the subtotal from which shipping is free.
var DefaultFreeShippingMinimum = decimal.NewFromInt(50000)

// Totals is the derived price summary of a cart.
type Totals struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// ComputeTotals derives the totals of s.
//
// The discount is computed against the subtotal and shipping is added after
// it; the total is floored at zero because a fixed coupon may exceed the
// subtotal.
func ComputeTotals(s State) Totals {
	t := Totals{
		Subtotal: decimal.Zero,
		Shipping: decimal.Zero,
	}
	for _, it := range s.Items {
		t.Subtotal = t.Subtotal.Add(it.LineTotal())
		t.ItemCount += it.Quantity
	}
	t.Discount = coupon.Amount(s.Coupon, t.Subtotal)
	if s.Shipping != nil {
		t.Shipping = s.Shipping.Cost
	}
	t.Total = decimal.Max(decimal.Zero, t.Subtotal.Sub(t.Discount).Add(t.Shipping))
	return t
}

// ComputeWeight returns Σ(weight × quantity). Items without a weight count
// as zero.
func ComputeWeight(s State) decimal.Decimal {
	w := decimal.Zero
	for _, it := range s.Items {
		w = w.Add(it.Weight.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return w
}

// HasFreeShipping reports whether the subtotal reaches minimum.
func HasFreeShipping(s State, minimum decimal.Decimal) bool {
	return ComputeTotals(s).Subtotal.GreaterThanOrEqual(minimum)
}

// FindingKind classifies a validation finding.
type FindingKind string

const (
	FindingStock        FindingKind = "stock"
	FindingDiscontinued FindingKind = "discontinued"
)

// Finding is a mismatch between a cart line and its catalog constraints. It
// is information for the caller, not an error: the cart never blocks a
// mutation because of it.
type Finding struct {
	Kind    FindingKind
	Message string
	Item    Item
}

// Validate lists every line whose quantity exceeds its stock snapshot and
// every line flagged discontinued. A line can produce both findings.
func Validate(s State) []Finding {
	var out []Finding
	for _, it := range s.Items {
		if it.Quantity > it.StockAvailable {
			out = append(out, Finding{
				Kind:    FindingStock,
				Message: fmt.Sprintf("Only %d of %s available, %d requested", it.StockAvailable, it.Name, it.Quantity),
				Item:    it,
			})
		}
		if it.Discontinued {
			out = append(out, Finding{
				Kind:    FindingDiscontinued,
				Message: fmt.Sprintf("%s is no longer available", it.Name),
				Item:    it,
			})
		}
	}
	return out
}
