// Command seed-db loads the product catalog and a few starter coupons for
// local development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/product"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))
	if err := postgres.NewCatalog(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	coupons := starterCoupons()
	if _, err := postgres.NewCouponRepository(pool).Upsert(ctx, coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	for _, c := range coupons {
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("type", string(c.Type)))
	}
	return nil
}

// parseProducts decodes a JSON array of {id, name, price}.
func parseProducts(data []byte) ([]product.Product, error) {
	var products []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Str()
				p.ID = v
				return err
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "price":
				n, err := d.Num()
				if err != nil {
					return err
				}
				p.Price, err = decimal.NewFromString(string(n))
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if p.ID == "" || !p.Price.IsPositive() {
			return errors.Errorf("product %q needs an id and a positive price", p.ID)
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

func starterCoupons() []coupon.Coupon {
	return []coupon.Coupon{
		{
			ID:     uuid.New().String(),
			Code:   "SAVE10",
			Type:   coupon.DiscountPercentage,
			Value:  decimal.NewFromInt(10),
			Active: true,
		},
		{
			ID:             uuid.New().String(),
			Code:           "WELCOME20",
			Type:           coupon.DiscountFixed,
			Value:          decimal.NewFromInt(20),
			MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(100)),
			MaxUsesPerUser: 1,
			Active:         true,
		},
	}
}
