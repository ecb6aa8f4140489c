package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors returned by the order service.
var (
	ErrNotFound           = errors.New("order not found")
	ErrDuplicateCode      = errors.New("order code already exists")
	ErrOngoingOrderExists = errors.New("please place your order after your current order is delivered")
	ErrEmptyItems         = errors.New("items required")
	ErrEmptyIDs           = errors.New("ids required")
	ErrAddressNotFound    = errors.New("shipping address not found")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidProductError indicates a product that does not resolve to a
// positive price.
type InvalidProductError struct {
	ProductID string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %s in items", e.ProductID)
}

// IsValidation reports whether err was caused by a malformed request.
func IsValidation(err error) bool {
	var (
		vErr *ValidationError
		qErr *InvalidQuantityError
	)
	return errors.As(err, &vErr) ||
		errors.As(err, &qErr) ||
		errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, ErrEmptyIDs) ||
		errors.Is(err, ErrAddressNotFound)
}
