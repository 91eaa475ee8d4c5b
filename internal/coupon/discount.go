package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Amount returns the discount c grants on subtotal.
//
// A nil coupon grants nothing. Percentage coupons take Value percent of the
// subtotal; fixed coupons take Value as is, even when it exceeds the
// subtotal. Unknown kinds grant nothing.
func Amount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	switch c.Kind {
	case KindPercentage:
		return subtotal.Mul(c.Value).Div(hundred)
	case KindFixed:
		return c.Value
	default:
		return decimal.Zero
	}
}
