package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
)

const (
	couponColumns = `id::text, code, discount_type, value, max_discount, min_order_amount,
		start_at, end_at, max_uses_total, max_uses_per_user, used_count, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	getCouponForUpdateSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`

	// The cap is re-checked by the UPDATE itself so concurrent redemptions
	// cannot overshoot it.
	incrementCouponUsageSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1
		  AND (max_uses_total IS NULL OR max_uses_total <= 0 OR used_count < max_uses_total)`

	addCouponRedeemerSQL = `INSERT INTO coupon_redeemers (coupon_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	countUserRedemptionsSQL = `SELECT count(*) FROM orders
		WHERE applied_coupon_id = $1 AND user_id = $2
		  AND payment IN ('paid', 'partial')
		  AND ($3 = '' OR id::text <> $3)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, value, max_discount, min_order_amount,
			start_at, end_at, max_uses_total, max_uses_per_user, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			max_discount = EXCLUDED.max_discount,
			min_order_amount = EXCLUDED.min_order_amount,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			max_uses_total = EXCLUDED.max_uses_total,
			max_uses_per_user = EXCLUDED.max_uses_per_user,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCouponByCode(ctx, r.pool, code)
}

// Upsert inserts the coupons or refreshes their definitions when the code
// already exists. Usage counters are never touched.
func (r *CouponRepository) Upsert(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL,
			c.ID, coupon.NormalizeCode(c.Code), string(c.Type), c.Value,
			c.MaxDiscount, c.MinOrderAmount, c.StartAt, c.EndAt,
			nullPositive(c.MaxUsesTotal), nullPositive(c.MaxUsesPerUser), c.Active,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return len(coupons), nil
}

func findCouponByCode(ctx context.Context, q querier, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

func getCouponForUpdate(ctx context.Context, q querier, id string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, getCouponForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("locking coupon %q: %w", id, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c              coupon.Coupon
		discountType   string
		maxDiscount    decimal.NullDecimal
		minOrderAmount decimal.NullDecimal
		startAt        *time.Time
		endAt          *time.Time
		maxUsesTotal   *int32
		maxUsesPerUser *int32
		usedCount      int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &maxDiscount, &minOrderAmount,
		&startAt, &endAt, &maxUsesTotal, &maxUsesPerUser, &usedCount, &c.Active,
	)
	c.Type = coupon.DiscountType(discountType)
	c.MaxDiscount = maxDiscount
	c.MinOrderAmount = minOrderAmount
	c.StartAt = startAt
	c.EndAt = endAt
	if maxUsesTotal != nil {
		c.MaxUsesTotal = int(*maxUsesTotal)
	}
	if maxUsesPerUser != nil {
		c.MaxUsesPerUser = int(*maxUsesPerUser)
	}
	c.UsedCount = int(usedCount)
	return c, err
}

func nullPositive(n int) *int32 {
	if n <= 0 {
		return nil
	}
	v := int32(n)
	return &v
}
