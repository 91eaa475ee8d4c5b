// Package memory holds in-process catalog and coupon repositories, used by
// the memory storage backend and in tests.
package memory

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
)

// Seed is the on-disk format of db/seed/catalog.json.
type Seed struct {
	Products []catalog.Product `json:"products"`
	Coupons  []SeedCoupon      `json:"coupons"`
}

// SeedCoupon is a coupon rule as written in the seed file.
type SeedCoupon struct {
	Code        string          `json:"code"`
	Kind        coupon.Kind     `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
	ValidFrom   *time.Time      `json:"validFrom,omitempty"`
	ValidUntil  *time.Time      `json:"validUntil,omitempty"`
	MaxUses     int             `json:"maxUses,omitempty"`
}

// Rule converts c to a coupon rule.
func (c SeedCoupon) Rule() coupon.Rule {
	return coupon.Rule{
		Coupon: coupon.Coupon{
			Code:  strings.ToUpper(strings.TrimSpace(c.Code)),
			Kind:  c.Kind,
			Value: c.Value,
		},
		Description: c.Description,
		ValidFrom:   c.ValidFrom,
		ValidUntil:  c.ValidUntil,
		MaxUses:     c.MaxUses,
	}
}

// ParseSeed decodes and checks a seed file.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}

	ids := make(map[string]struct{}, len(s.Products))
	for _, p := range s.Products {
		if p.ID == "" {
			return nil, errors.Errorf("product %q: empty id", p.Name)
		}
		if _, dup := ids[p.ID]; dup {
			return nil, errors.Errorf("product %q: duplicate id", p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	for _, c := range s.Coupons {
		if !c.Kind.Valid() {
			return nil, errors.Errorf("coupon %q: unsupported kind %q", c.Code, c.Kind)
		}
	}
	return &s, nil
}
