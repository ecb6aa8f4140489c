package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/product"
)

const (
	priceMapSQL = `SELECT id, price FROM products WHERE id = ANY($1)`

	upsertProductSQL = `
INSERT INTO products (id, name, price) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price
WHERE (products.name, products.price) IS DISTINCT FROM (EXCLUDED.name, EXCLUDED.price)`
)

var _ product.Catalog = (*Catalog)(nil)

// Catalog implements product.Catalog backed by the products table.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog returns a Catalog that uses the given pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

type priceRow struct {
	ID    string
	Price decimal.Decimal
}

// PriceMap returns the unit price of every known product in ids.
func (c *Catalog) PriceMap(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := c.pool.Query(ctx, priceMapSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("querying product prices: %w", err)
	}

	prices, err := pgx.CollectRows(rows, pgx.RowToStructByPos[priceRow])
	if err != nil {
		return nil, fmt.Errorf("collecting product prices: %w", err)
	}

	for _, p := range prices {
		out[p.ID] = p.Price
	}
	return out, nil
}

// Upsert inserts products or refreshes their name and price.
func (c *Catalog) Upsert(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.ID, p.Name, p.Price)
	}
	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d products: %w", len(products), err)
	}
	return nil
}
