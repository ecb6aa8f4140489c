package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes Value percent off the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat Value off the order.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrInvalidCoupon is returned when a coupon code does not resolve.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrCouponInactive is returned for coupons switched off by an admin.
	ErrCouponInactive = errors.New("coupon is inactive")
	// ErrCouponNotStarted is returned before the coupon's start time.
	ErrCouponNotStarted = errors.New("coupon not started yet")
	// ErrCouponExpired is returned after the coupon's end time.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrTotalUsageLimitReached is returned when the global cap is exhausted.
	ErrTotalUsageLimitReached = errors.New("total usage limit reached")
	// ErrPerUserUsageLimitReached is returned when the user exhausted their own cap.
	ErrPerUserUsageLimitReached = errors.New("per-user usage limit reached")
)

// MinOrderAmountError is returned when the subtotal is below the coupon minimum.
type MinOrderAmountError struct {
	Min decimal.Decimal
}

func (e *MinOrderAmountError) Error() string {
	return "minimum order amount is " + e.Min.String()
}

// IsRejection reports whether err is one of the coupon rule rejections, as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	var minErr *MinOrderAmountError
	return errors.Is(err, ErrInvalidCoupon) ||
		errors.Is(err, ErrCouponInactive) ||
		errors.Is(err, ErrCouponNotStarted) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrTotalUsageLimitReached) ||
		errors.Is(err, ErrPerUserUsageLimitReached) ||
		errors.As(err, &minErr)
}

// Coupon is a discount code with its time window and usage caps.
type Coupon struct {
	ID             string
	Code           string
	Type           DiscountType
	Value          decimal.Decimal
	MaxDiscount    decimal.NullDecimal
	MinOrderAmount decimal.NullDecimal
	StartAt        *time.Time
	EndAt          *time.Time
	// MaxUsesTotal and MaxUsesPerUser are unlimited when zero.
	MaxUsesTotal   int
	MaxUsesPerUser int
	UsedCount      int
	Active         bool
}

// NormalizeCode returns the canonical, case-insensitive form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var hundred = decimal.NewFromInt(100)

// DiscountFor returns the discount this coupon grants on subtotal, rounded
// to cents and never negative.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid && amount.GreaterThan(c.MaxDiscount.Decimal) {
			amount = c.MaxDiscount.Decimal
		}
	case DiscountFixed:
		amount = c.Value
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Repository looks up coupons by code.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon when no coupon matches the
	// normalized code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// UsageCounter counts a user's redemptions of a coupon, i.e. their orders
// referencing it whose payment is paid or partial.
type UsageCounter interface {
	CountUserRedemptions(ctx context.Context, couponID, userID, excludeOrderID string) (int, error)
}
