// Package rediscache provides a Redis read-through cache for catalog prices.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/product"
)

const keyPrefix = "catalog:price:"

// Client is the subset of redis.Cmdable used by the cache.
type Client interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

var _ product.Catalog = (*Catalog)(nil)

// Catalog serves prices from Redis and falls back to the wrapped catalog
// for misses. Cache errors degrade to a direct lookup; they are never
// returned.
type Catalog struct {
	rdb  Client
	next product.Catalog
	ttl  time.Duration
}

// NewCatalog wraps next with a cache whose entries live for ttl.
func NewCatalog(rdb Client, next product.Catalog, ttl time.Duration) *Catalog {
	return &Catalog{rdb: rdb, next: next, ttl: ttl}
}

func key(id string) string {
	return keyPrefix + id
}

// PriceMap implements product.Catalog.
func (c *Catalog) PriceMap(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	lg := zctx.From(ctx)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		lg.Warn("Price cache unavailable", zap.Error(err))
		return c.next.PriceMap(ctx, ids)
	}

	out := make(map[string]decimal.Decimal, len(ids))
	var misses []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		price, err := decimal.NewFromString(s)
		if err != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = price
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.PriceMap(ctx, misses)
	if err != nil {
		return nil, errors.Wrap(err, "load prices")
	}

	for id, price := range fetched {
		out[id] = price
	}
	if len(fetched) == 0 {
		return out, nil
	}

	if _, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, price := range fetched {
			pipe.Set(ctx, key(id), price.String(), c.ttl)
		}
		return nil
	}); err != nil {
		lg.Warn("Cache prices", zap.Int("count", len(fetched)), zap.Error(err))
	}
	return out, nil
}
