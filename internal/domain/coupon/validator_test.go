package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUsage struct {
	count     int
	err       error
	calls     int
	lastUser  string
	lastExcl  string
	lastCoupo string
}

func (m *mockUsage) CountUserRedemptions(_ context.Context, couponID, userID, excludeOrderID string) (int, error) {
	m.calls++
	m.lastCoupo = couponID
	m.lastUser = userID
	m.lastExcl = excludeOrderID
	return m.count, m.err
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	base := func() *Coupon {
		return &Coupon{
			ID:     "c1",
			Code:   "SAVE10",
			Type:   DiscountPercentage,
			Value:  decimal.NewFromInt(10),
			Active: true,
		}
	}

	tests := []struct {
		name     string
		coupon   func() *Coupon
		usage    *mockUsage
		subtotal string
		wantErr  error
		wantMin  bool
	}{
		{
			name:     "valid coupon",
			coupon:   base,
			usage:    &mockUsage{},
			subtotal: "200",
		},
		{
			name:     "missing coupon",
			coupon:   func() *Coupon { return nil },
			usage:    &mockUsage{},
			subtotal: "200",
			wantErr:  ErrInvalidCoupon,
		},
		{
			name: "inactive wins over expired",
			coupon: func() *Coupon {
				c := base()
				c.Active = false
				c.EndAt = &past
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
			wantErr:  ErrCouponInactive,
		},
		{
			name: "not started",
			coupon: func() *Coupon {
				c := base()
				c.StartAt = &future
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
			wantErr:  ErrCouponNotStarted,
		},
		{
			name: "expired",
			coupon: func() *Coupon {
				c := base()
				c.StartAt = &past
				c.EndAt = &past
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
			wantErr:  ErrCouponExpired,
		},
		{
			name: "window bounds are inclusive",
			coupon: func() *Coupon {
				c := base()
				c.StartAt = &fixedNow
				c.EndAt = &fixedNow
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
		},
		{
			name: "below minimum order amount",
			coupon: func() *Coupon {
				c := base()
				c.MinOrderAmount = nullDec("250")
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
			wantMin:  true,
		},
		{
			name: "total cap reached",
			coupon: func() *Coupon {
				c := base()
				c.MaxUsesTotal = 1
				c.UsedCount = 1
				return c
			},
			usage:    &mockUsage{},
			subtotal: "200",
			wantErr:  ErrTotalUsageLimitReached,
		},
		{
			name: "per-user cap reached",
			coupon: func() *Coupon {
				c := base()
				c.MaxUsesPerUser = 2
				return c
			},
			usage:    &mockUsage{count: 2},
			subtotal: "200",
			wantErr:  ErrPerUserUsageLimitReached,
		},
		{
			name: "per-user cap not reached",
			coupon: func() *Coupon {
				c := base()
				c.MaxUsesPerUser = 2
				return c
			},
			usage:    &mockUsage{count: 1},
			subtotal: "200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Validator{now: func() time.Time { return fixedNow }}

			err := v.Validate(context.Background(), tt.usage, tt.coupon(), "u1", decimal.RequireFromString(tt.subtotal))

			switch {
			case tt.wantMin:
				var minErr *MinOrderAmountError
				require.ErrorAs(t, err, &minErr)
				assert.Equal(t, "minimum order amount is 250", err.Error())
				assert.True(t, IsRejection(err))
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsRejection(err))
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestValidator_CheckCaps(t *testing.T) {
	v := NewValidator()

	t.Run("per-user count excludes the given order", func(t *testing.T) {
		usage := &mockUsage{count: 0}
		c := &Coupon{ID: "c1", MaxUsesPerUser: 1}

		require.NoError(t, v.CheckCaps(context.Background(), usage, c, "u1", "o1"))
		assert.Equal(t, "c1", usage.lastCoupo)
		assert.Equal(t, "u1", usage.lastUser)
		assert.Equal(t, "o1", usage.lastExcl)
	})

	t.Run("no per-user cap skips the count", func(t *testing.T) {
		usage := &mockUsage{}
		require.NoError(t, v.CheckCaps(context.Background(), usage, &Coupon{ID: "c1"}, "u1", ""))
		assert.Zero(t, usage.calls)
	})

	t.Run("count failure is not a rejection", func(t *testing.T) {
		usage := &mockUsage{err: errors.New("connection reset")}
		err := v.CheckCaps(context.Background(), usage, &Coupon{ID: "c1", MaxUsesPerUser: 1}, "u1", "")
		require.Error(t, err)
		assert.False(t, IsRejection(err))
	})
}

func TestCoupon_DiscountFor(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal string
		want     string
	}{
		{
			name:     "percentage",
			coupon:   Coupon{Type: DiscountPercentage, Value: decimal.NewFromInt(10)},
			subtotal: "200",
			want:     "20",
		},
		{
			name:     "percentage capped by max discount",
			coupon:   Coupon{Type: DiscountPercentage, Value: decimal.NewFromInt(50), MaxDiscount: nullDec("30")},
			subtotal: "200",
			want:     "30",
		},
		{
			name:     "percentage rounds half up",
			coupon:   Coupon{Type: DiscountPercentage, Value: decimal.RequireFromString("12.5")},
			subtotal: "0.6",
			want:     "0.08",
		},
		{
			name:     "fixed takes value as is",
			coupon:   Coupon{Type: DiscountFixed, Value: decimal.NewFromInt(15)},
			subtotal: "10",
			want:     "15",
		},
		{
			name:     "negative value clamps to zero",
			coupon:   Coupon{Type: DiscountFixed, Value: decimal.NewFromInt(-5)},
			subtotal: "10",
			want:     "0",
		},
		{
			name:     "unknown type grants nothing",
			coupon:   Coupon{Type: "bogus", Value: decimal.NewFromInt(5)},
			subtotal: "10",
			want:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.DiscountFor(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
	assert.Equal(t, "", NormalizeCode(""))
}
