// Package pricing computes order totals from priced line items, an optional
// discount rule and a caller-supplied tax amount.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegativeTax is returned when the supplied tax amount is below zero.
var ErrNegativeTax = fmt.Errorf("tax amount must not be negative")

// UnpricedProductError indicates a line references a product whose resolved
// unit price is missing or zero.
type UnpricedProductError struct {
	ProductID string
}

func (e *UnpricedProductError) Error() string {
	return fmt.Sprintf("product %s has no price", e.ProductID)
}

// Line is a single priced order line.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns the line subtotal rounded to cents.
func (l Line) Total() decimal.Decimal {
	return Round2(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// Discounter computes the discount granted for a given subtotal.
type Discounter interface {
	DiscountFor(subtotal decimal.Decimal) decimal.Decimal
}

// Totals holds every monetary component of an order.
type Totals struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
	// LineTotals is parallel to the input lines.
	LineTotals []decimal.Decimal
	TotalItems int
}

// Round2 rounds d to two decimal places, half away from zero. For the
// non-negative amounts handled here that is half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Subtotal sums the rounded line totals. Every line must carry a positive
// unit price.
func Subtotal(lines []Line) (decimal.Decimal, []decimal.Decimal, error) {
	sum := decimal.Zero
	totals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		if !l.UnitPrice.IsPositive() {
			return decimal.Zero, nil, &UnpricedProductError{ProductID: l.ProductID}
		}
		totals[i] = l.Total()
		sum = sum.Add(totals[i])
	}
	return Round2(sum), totals, nil
}

// Compute prices the lines, applies the discount (nil means none) and adds
// tax. Each component is rounded independently and the grand total is
// floored at zero.
func Compute(lines []Line, discount Discounter, tax decimal.Decimal) (*Totals, error) {
	if tax.IsNegative() {
		return nil, ErrNegativeTax
	}

	subtotal, lineTotals, err := Subtotal(lines)
	if err != nil {
		return nil, err
	}

	discountAmount := decimal.Zero
	if discount != nil {
		discountAmount = discount.DiscountFor(subtotal)
	}
	if discountAmount.IsNegative() {
		discountAmount = decimal.Zero
	}
	discountAmount = Round2(discountAmount)
	tax = Round2(tax)

	grand := Round2(subtotal.Sub(discountAmount).Add(tax))
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	items := 0
	for _, l := range lines {
		items += l.Quantity
	}

	return &Totals{
		Subtotal:   subtotal,
		Discount:   discountAmount,
		Tax:        tax,
		GrandTotal: grand,
		LineTotals: lineTotals,
		TotalItems: items,
	}, nil
}
