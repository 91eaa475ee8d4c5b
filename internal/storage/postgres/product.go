package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-storefront/internal/catalog"
)

var _ catalog.Repository = (*ProductRepository)(nil)

const productColumns = `id, name, price, category, stock, weight, discontinued, variants`

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses the given
// connection.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns the product with the given id, or catalog.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// List returns all products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Upsert inserts p or replaces the stored product with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, p catalog.Product) error {
	variants, err := json.Marshal(p.Variants)
	if err != nil {
		return errors.Wrap(err, "marshal variants")
	}
	if p.Variants == nil {
		variants = []byte("[]")
	}

	const query = `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			stock = EXCLUDED.stock,
			weight = EXCLUDED.weight,
			discontinued = EXCLUDED.discontinued,
			variants = EXCLUDED.variants`

	if _, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Price, p.Category, p.Stock, p.Weight, p.Discontinued, variants,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p        catalog.Product
		variants []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Category, &p.Stock, &p.Weight, &p.Discontinued, &variants,
	); err != nil {
		return catalog.Product{}, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &p.Variants); err != nil {
			return catalog.Product{}, errors.Wrap(err, "unmarshal variants")
		}
	}
	return p, nil
}
