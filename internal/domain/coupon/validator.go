package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator evaluates a coupon against its time window, minimum order amount
// and usage caps. It only reads; redemption is recorded elsewhere.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs every check in order and returns the first failure, or nil
// when the coupon can be applied to an order of the given subtotal.
func (v *Validator) Validate(
	ctx context.Context,
	usage UsageCounter,
	c *Coupon,
	userID string,
	subtotal decimal.Decimal,
) error {
	if c == nil {
		return ErrInvalidCoupon
	}
	if !c.Active {
		return ErrCouponInactive
	}

	now := v.now()
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return ErrCouponNotStarted
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return ErrCouponExpired
	}

	if c.MinOrderAmount.Valid && subtotal.LessThan(c.MinOrderAmount.Decimal) {
		return &MinOrderAmountError{Min: c.MinOrderAmount.Decimal}
	}

	return v.CheckCaps(ctx, usage, c, userID, "")
}

// CheckCaps verifies the global and per-user usage caps. Orders with id
// excludeOrderID are left out of the per-user count so an order being paid
// does not count against itself.
func (v *Validator) CheckCaps(
	ctx context.Context,
	usage UsageCounter,
	c *Coupon,
	userID string,
	excludeOrderID string,
) error {
	if c.MaxUsesTotal > 0 && c.UsedCount >= c.MaxUsesTotal {
		return ErrTotalUsageLimitReached
	}

	if c.MaxUsesPerUser > 0 {
		used, err := usage.CountUserRedemptions(ctx, c.ID, userID, excludeOrderID)
		if err != nil {
			return errors.Wrap(err, "count user redemptions")
		}
		if used >= c.MaxUsesPerUser {
			return ErrPerUserUsageLimitReached
		}
	}

	return nil
}
