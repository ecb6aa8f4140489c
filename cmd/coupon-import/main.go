// Command coupon-import loads coupon definitions from gzip-compressed NDJSON
// files into the coupons table.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/storage/postgres"
)

const batchSize = 500

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
		if err != nil {
			slog.Error("list coupon files", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sort.Strings(matches)
		files = matches
	}

	if err := run(ctx, files, databaseURL, dryRun); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool) error {
	if len(files) == 0 {
		return errors.New("no coupon files found")
	}

	slog.Info("reading coupon files", slog.Int("files", len(files)))
	perFile, err := readFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read coupon files")
	}

	coupons, dupes := dedupe(perFile)
	slog.Info("coupons parsed",
		slog.Int("unique", len(coupons)),
		slog.Int("duplicates", dupes),
	)

	if dryRun || len(coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), coupons)
}

type upserter interface {
	Upsert(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

// writeCoupons upserts coupons in batches.
func writeCoupons(ctx context.Context, repo upserter, coupons []coupon.Coupon) error {
	written := 0
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))
		n, err := repo.Upsert(ctx, coupons[start:end])
		if err != nil {
			return errors.Wrapf(err, "upsert batch at %d", start)
		}
		written += n
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(coupons)))
	}
	return nil
}
