package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
)

const (
	bloomFPR     = 0.001
	maxLineBytes = 64 << 10
)

// readFiles decodes every file concurrently. Results keep the file order so
// deduplication is deterministic.
func readFiles(ctx context.Context, files []string) ([][]coupon.Coupon, error) {
	out := make([][]coupon.Coupon, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			coupons, skipped, err := readFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			slog.Info("file decoded",
				slog.String("file", path),
				slog.Int("coupons", len(coupons)),
				slog.Int("skipped", skipped),
			)
			out[i] = coupons
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// readFile streams one gzip NDJSON file. Malformed lines are skipped and
// counted.
func readFile(ctx context.Context, path string) (coupons []coupon.Coupon, skipped int, _ error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		c, err := parseCoupon(raw)
		if err != nil {
			slog.Warn("skipping coupon line",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		coupons = append(coupons, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "scan")
	}
	return coupons, skipped, nil
}

// parseCoupon decodes one coupon definition and normalizes its code.
func parseCoupon(raw []byte) (coupon.Coupon, error) {
	c := coupon.Coupon{Active: true}
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := d.Str()
			c.Code = coupon.NormalizeCode(v)
			return err
		case "type":
			v, err := d.Str()
			c.Type = coupon.DiscountType(v)
			return err
		case "value":
			v, err := decodeDecimal(d)
			c.Value = v
			return err
		case "maxDiscount":
			v, err := decodeNullDecimal(d)
			c.MaxDiscount = v
			return err
		case "minOrderAmount":
			v, err := decodeNullDecimal(d)
			c.MinOrderAmount = v
			return err
		case "startAt":
			v, err := decodeTime(d)
			c.StartAt = v
			return err
		case "endAt":
			v, err := decodeTime(d)
			c.EndAt = v
			return err
		case "maxUsesTotal":
			v, err := d.Int()
			c.MaxUsesTotal = v
			return err
		case "maxUsesPerUser":
			v, err := d.Int()
			c.MaxUsesPerUser = v
			return err
		case "isActive", "active":
			v, err := d.Bool()
			c.Active = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return c, errors.Wrap(err, "decode")
	}

	switch {
	case c.Code == "":
		return c, errors.New("code is required")
	case !c.Type.Valid():
		return c, errors.Errorf("unknown discount type %q", c.Type)
	case !c.Value.IsPositive():
		return c, errors.New("value must be positive")
	case c.StartAt != nil && c.EndAt != nil && c.EndAt.Before(*c.StartAt):
		return c, errors.New("endAt is before startAt")
	}
	c.ID = uuid.New().String()
	return c, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}

func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}, nil
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// duplicateCandidates returns the codes that may occur more than once.
// A code the filter has not seen before is certainly new, so every code
// outside the result occurs exactly once.
func duplicateCandidates(perFile [][]coupon.Coupon, total int) map[string]struct{} {
	filter := bloom.NewWithEstimates(uint(total), bloomFPR)
	candidates := make(map[string]struct{})
	for _, cs := range perFile {
		for _, c := range cs {
			if filter.TestAndAddString(c.Code) {
				candidates[c.Code] = struct{}{}
			}
		}
	}
	return candidates
}

// dedupe keeps the first definition of every code across files. Only
// candidate duplicates are tracked exactly.
func dedupe(perFile [][]coupon.Coupon) ([]coupon.Coupon, int) {
	total := 0
	for _, cs := range perFile {
		total += len(cs)
	}
	if total == 0 {
		return nil, 0
	}

	candidates := duplicateCandidates(perFile, total)
	kept := make(map[string]struct{}, len(candidates))
	out := make([]coupon.Coupon, 0, total)
	dupes := 0

	for _, cs := range perFile {
		for _, c := range cs {
			if _, ok := candidates[c.Code]; ok {
				if _, ok := kept[c.Code]; ok {
					dupes++
					continue
				}
				kept[c.Code] = struct{}{}
			}
			out = append(out, c)
		}
	}
	return out, dupes
}
