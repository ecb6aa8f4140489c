package order

import (
	"context"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
)

// Store persists orders. Writes that must be atomic go through InTx.
type Store interface {
	// InTx runs fn inside a single transaction, committing when fn returns
	// nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get returns the hydrated order or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// Delete returns ErrNotFound when nothing was removed.
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) (int, error)
}

// Tx is the set of operations available inside an order transaction.
type Tx interface {
	coupon.UsageCounter

	// LockUser serializes order creation per user until the transaction ends.
	LockUser(ctx context.Context, userID string) error
	// HasOngoing reports whether the user has a non-terminal order or an
	// entry in the ongoing view.
	HasOngoing(ctx context.Context, userID string) (bool, error)

	CreateAddress(ctx context.Context, a *Address) error
	AddressExists(ctx context.Context, id string) (bool, error)

	// CreateOrder inserts the order and its line items. A reused code
	// yields ErrDuplicateCode.
	CreateOrder(ctx context.Context, o *Order) error
	// GetForUpdate loads the bare order row and locks it, or returns
	// ErrNotFound.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error

	// FindCouponByCode returns coupon.ErrInvalidCoupon for unknown codes.
	FindCouponByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	// GetCouponForUpdate locks the coupon row for the rest of the transaction.
	GetCouponForUpdate(ctx context.Context, id string) (*coupon.Coupon, error)
	// RedeemCoupon records userID as a redeemer and increments the usage
	// counter only while it is below the total cap. It reports false when
	// the cap prevented the increment.
	RedeemCoupon(ctx context.Context, couponID, userID string) (bool, error)
}

// Reflector keeps the derived ongoing, history and cancellation views in
// step with committed orders.
type Reflector interface {
	Reflect(ctx context.Context, orderID string) error
	ForgetOngoing(ctx context.Context, orderIDs []string) error
}

// Notifier hands hydrated order snapshots to external bookkeeping.
type Notifier interface {
	// PushAsync sends in the background; failures are only logged.
	PushAsync(ctx context.Context, o *Order)
	// Push sends and waits for the outcome.
	Push(ctx context.Context, o *Order) error
}
