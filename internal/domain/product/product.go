package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

// Catalog resolves product identifiers to their current unit prices.
// Unknown identifiers are absent from the returned map; callers treat a
// missing entry as an invalid product.
type Catalog interface {
	PriceMap(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// UniqueIDs returns ids without duplicates or empty values, keeping first
// occurrence order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
