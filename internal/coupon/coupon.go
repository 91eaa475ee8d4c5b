package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercentage discounts Value percent of the cart subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed discounts a fixed monetary Value. It is not capped at the
	// subtotal; the cart total is floored at zero instead.
	KindFixed Kind = "fixed"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPercentage || k == KindFixed
}

var (
	// ErrInvalidCoupon is returned when a coupon code is not found.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Coupon is the discount applied to a cart. At most one is active per cart.
type Coupon struct {
	Code  string          `json:"code"`
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Rule is a stored coupon together with its eligibility constraints.
type Rule struct {
	Coupon

	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     int
	Uses        int
}

// Repository provides lookup of coupon rules by code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
}
