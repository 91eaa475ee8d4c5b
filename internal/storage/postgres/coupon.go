package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-storefront/internal/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DBTX
}

// NewCouponRepository returns a CouponRepository that uses the given
// connection.
func NewCouponRepository(db DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks up an active coupon by its code, case-insensitively.
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	const query = `
		SELECT code, kind, value, description, valid_from, valid_until, max_uses, uses
		FROM coupons
		WHERE code = UPPER($1) AND active`

	var (
		rule coupon.Rule
		kind string
	)
	err := r.db.QueryRow(ctx, query, code).Scan(
		&rule.Code, &kind, &rule.Value, &rule.Description,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	rule.Kind = coupon.Kind(kind)

	return &rule, nil
}

// Upsert inserts the rule or replaces the stored rule with the same code.
// Codes are stored upper-case. The usage counter of an existing rule is
// kept.
func (r *CouponRepository) Upsert(ctx context.Context, rule coupon.Rule) error {
	const query = `
		INSERT INTO coupons (code, kind, value, description, valid_from, valid_until, max_uses, active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			active = true`

	if _, err := r.db.Exec(ctx, query,
		strings.TrimSpace(rule.Code), string(rule.Kind), rule.Value, rule.Description,
		rule.ValidFrom, rule.ValidUntil, rule.MaxUses,
	); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}
