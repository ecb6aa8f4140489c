package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestParseCoupon(t *testing.T) {
	c, err := parseCoupon([]byte(`{
		"code": " save10 ",
		"type": "percentage",
		"value": 10,
		"maxDiscount": "25.50",
		"minOrderAmount": null,
		"startAt": "2025-01-01T00:00:00Z",
		"endAt": "2025-12-31T23:59:59Z",
		"maxUsesTotal": 100,
		"maxUsesPerUser": 1,
		"isActive": false,
		"description": "ignored"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, coupon.DiscountType("percentage"), c.Type)
	assert.True(t, c.Value.Equal(decimal.NewFromInt(10)))
	assert.True(t, c.MaxDiscount.Valid)
	assert.True(t, c.MaxDiscount.Decimal.Equal(decimal.RequireFromString("25.5")))
	assert.False(t, c.MinOrderAmount.Valid)
	require.NotNil(t, c.StartAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *c.StartAt)
	assert.Equal(t, 100, c.MaxUsesTotal)
	assert.Equal(t, 1, c.MaxUsesPerUser)
	assert.False(t, c.Active)
	assert.NotEmpty(t, c.ID)
}

func TestParseCoupon_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "NotJSON", line: `code=SAVE10`},
		{name: "MissingCode", line: `{"type":"fixed","value":5}`},
		{name: "UnknownType", line: `{"code":"X","type":"bogo","value":5}`},
		{name: "ZeroValue", line: `{"code":"X","type":"fixed","value":0}`},
		{name: "BadTime", line: `{"code":"X","type":"fixed","value":5,"endAt":"tomorrow"}`},
		{name: "InvertedWindow", line: `{"code":"X","type":"fixed","value":5,"startAt":"2025-02-01T00:00:00Z","endAt":"2025-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCoupon([]byte(tt.line))
			assert.Error(t, err)
		})
	}
}

func TestReadFilesAndDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.ndjson.gz",
		`{"code":"save10","type":"percentage","value":10}`,
		`{"code":"FIVE","type":"fixed","value":"5"}`,
		`not json`,
		``,
	)
	b := writeGz(t, dir, "b.ndjson.gz",
		`{"code":"SAVE10","type":"fixed","value":99}`,
		`{"code":"NEW","type":"fixed","value":1}`,
	)

	perFile, err := readFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, perFile, 2)
	assert.Len(t, perFile[0], 2)
	assert.Len(t, perFile[1], 2)

	coupons, dupes := dedupe(perFile)
	assert.Equal(t, 1, dupes)
	require.Len(t, coupons, 3)

	codes := make([]string, len(coupons))
	for i, c := range coupons {
		codes[i] = c.Code
	}
	assert.Equal(t, []string{"SAVE10", "FIVE", "NEW"}, codes)
	// The first file's definition wins.
	assert.Equal(t, coupon.DiscountType("percentage"), coupons[0].Type)
}

func TestReadFiles_Missing(t *testing.T) {
	_, err := readFiles(context.Background(), []string{filepath.Join(t.TempDir(), "nope.ndjson.gz")})
	assert.Error(t, err)
}

func TestDuplicateCandidates(t *testing.T) {
	perFile := [][]coupon.Coupon{
		{{Code: "SAVE10"}, {Code: "FIVE"}},
		{{Code: "NEW"}, {Code: "SAVE10"}, {Code: "SAVE10"}},
	}

	candidates := duplicateCandidates(perFile, 5)
	assert.Contains(t, candidates, "SAVE10")
	assert.NotContains(t, candidates, "FIVE")
	assert.NotContains(t, candidates, "NEW")

	coupons, dupes := dedupe(perFile)
	assert.Equal(t, 2, dupes)
	assert.Len(t, coupons, 3)
}

func TestDedupe_Empty(t *testing.T) {
	coupons, dupes := dedupe(nil)
	assert.Empty(t, coupons)
	assert.Zero(t, dupes)
}

type fakeUpserter struct {
	batches [][]coupon.Coupon
}

func (f *fakeUpserter) Upsert(_ context.Context, cs []coupon.Coupon) (int, error) {
	f.batches = append(f.batches, cs)
	return len(cs), nil
}

func TestWriteCoupons_Batches(t *testing.T) {
	coupons := make([]coupon.Coupon, batchSize*2+1)
	repo := &fakeUpserter{}
	require.NoError(t, writeCoupons(context.Background(), repo, coupons))

	require.Len(t, repo.batches, 3)
	assert.Len(t, repo.batches[0], batchSize)
	assert.Len(t, repo.batches[2], 1)
}
