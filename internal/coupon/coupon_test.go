package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *Coupon
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "no coupon",
			coupon:   nil,
			subtotal: d("50000"),
			want:     d("0"),
		},
		{
			name:     "percentage 10% of 50000",
			coupon:   &Coupon{Code: "TEN", Kind: KindPercentage, Value: d("10")},
			subtotal: d("50000"),
			want:     d("5000"),
		},
		{
			name:     "percentage keeps fractional result",
			coupon:   &Coupon{Code: "PCT15", Kind: KindPercentage, Value: d("15")},
			subtotal: d("29.97"),
			want:     d("4.4955"),
		},
		{
			name:     "percentage 100% equals subtotal",
			coupon:   &Coupon{Code: "FREE", Kind: KindPercentage, Value: d("100")},
			subtotal: d("100"),
			want:     d("100"),
		},
		{
			name:     "fixed below subtotal",
			coupon:   &Coupon{Code: "FLAT", Kind: KindFixed, Value: d("3000")},
			subtotal: d("20000"),
			want:     d("3000"),
		},
		{
			name:     "fixed above subtotal is not capped",
			coupon:   &Coupon{Code: "BIG", Kind: KindFixed, Value: d("90000")},
			subtotal: d("20000"),
			want:     d("90000"),
		},
		{
			name:     "unknown kind grants nothing",
			coupon:   &Coupon{Code: "BAD", Kind: Kind("bogus"), Value: d("10")},
			subtotal: d("100"),
			want:     d("0"),
		},
		{
			name:     "percentage of empty cart",
			coupon:   &Coupon{Code: "TEN", Kind: KindPercentage, Value: d("10")},
			subtotal: decimal.Zero,
			want:     d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amount(tt.coupon, tt.subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindPercentage.Valid())
	assert.True(t, KindFixed.Valid())
	assert.False(t, Kind("free_lowest").Valid())
}
