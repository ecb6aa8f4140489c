package main

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProducts(t *testing.T) {
	products, err := parseProducts([]byte(`[
		{"id": "p1", "name": "Cookie", "price": 12.5, "category": "ignored"},
		{"id": "p2", "name": "Box", "price": 95}
	]`))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("12.5")))

	_, err = parseProducts([]byte(`[{"id": "p1", "name": "Free", "price": 0}]`))
	assert.Error(t, err)

	_, err = parseProducts([]byte(`{"id": "p1"}`))
	assert.Error(t, err)
}

func TestSeedFileParses(t *testing.T) {
	data, err := os.ReadFile("../../db/seed/products.json")
	require.NoError(t, err)
	products, err := parseProducts(data)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}

func TestStarterCoupons(t *testing.T) {
	for _, c := range starterCoupons() {
		assert.True(t, c.Type.Valid(), c.Code)
		assert.True(t, c.Value.IsPositive(), c.Code)
		assert.NotEmpty(t, c.ID)
	}
}
