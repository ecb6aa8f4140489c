package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

const (
	orderColumns = `o.id::text, o.code, o.user_id, o.status, o.payment, o.total_items,
		o.subtotal_amount, o.discount_amount, o.tax_amount, o.grand_total,
		o.applied_coupon_id::text, o.coupon_redeemed, o.shipping_address_id::text,
		o.delivery_instructions, o.ar_delivery_instructions, o.card_message, o.ar_card_message,
		o.card_image, o.satisfaction, o.cancel_reason,
		o.placed_at, o.confirmed_at, o.delivered_at, o.created_at, o.updated_at`

	hydratedColumns = orderColumns + `, c.code,
		a.recipient_name, a.sender_phone, a.receiver_phone, a.street, a.city, a.country, a.notes`

	hydratedFrom = ` FROM orders o
		LEFT JOIN coupons c ON c.id = o.applied_coupon_id
		JOIN addresses a ON a.id = o.shipping_address_id`

	getOrderSQL = `SELECT ` + hydratedColumns + hydratedFrom + ` WHERE o.id = $1`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 FOR UPDATE`

	listItemsSQL = `SELECT order_id::text, id::text, product_ids, quantity, unit_price, discount, total
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`

	insertOrderSQL = `INSERT INTO orders (id, code, user_id, status, payment, total_items,
			subtotal_amount, discount_amount, tax_amount, grand_total,
			applied_coupon_id, coupon_redeemed, shipping_address_id,
			delivery_instructions, ar_delivery_instructions, card_message, ar_card_message,
			card_image, satisfaction, cancel_reason, placed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	insertItemSQL = `INSERT INTO order_items (id, order_id, position, product_ids, quantity, unit_price, discount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	updateOrderSQL = `UPDATE orders SET
			status = $2, payment = $3, coupon_redeemed = $4, shipping_address_id = $5,
			delivery_instructions = $6, ar_delivery_instructions = $7,
			card_message = $8, ar_card_message = $9, card_image = $10,
			satisfaction = $11, cancel_reason = $12,
			confirmed_at = $13, delivered_at = $14, updated_at = $15
		WHERE id = $1`

	deleteOrderSQL      = `DELETE FROM orders WHERE id = $1`
	bulkDeleteOrdersSQL = `DELETE FROM orders WHERE id = ANY($1::uuid[])`

	insertAddressSQL = `INSERT INTO addresses (id, recipient_name, sender_phone, receiver_phone, street, city, country, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	addressExistsSQL = `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1)`

	// The orders table is checked too: the ongoing view is written after
	// commit, so it lags behind a just-created order.
	hasOngoingSQL = `SELECT EXISTS (SELECT 1 FROM ongoing_orders WHERE user_id = $1)
		OR EXISTS (SELECT 1 FROM orders WHERE user_id = $1
			AND status NOT IN ('delivered', 'cancelled', 'returned'))`

	lockUserSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	orderCodeConstraint = "orders_code_key"
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn in a transaction. The transaction is rolled back unless fn
// succeeds and the commit goes through.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &orderTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get returns the hydrated order or order.ErrNotFound.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	if !isUUID(id) {
		return nil, order.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanHydratedOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns hydrated orders matching f, most recently placed first.
func (s *OrderStore) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.UserID != "" {
		add("o.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		add("o.status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		add("o.placed_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		y, m, d := f.To.Date()
		add("o.placed_at < ?", time.Date(y, m, d, 0, 0, 0, 0, f.To.Location()).AddDate(0, 0, 1))
	}

	sql := `SELECT ` + hydratedColumns + hydratedFrom
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY o.placed_at DESC, o.code`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanHydratedOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Delete removes the order and its line items.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return order.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// BulkDelete removes every listed order and reports how many existed.
func (s *OrderStore) BulkDelete(ctx context.Context, ids []string) (int, error) {
	valid := parseUUIDs(ids)
	if len(valid) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, bulkDeleteOrdersSQL, valid)
	if err != nil {
		return 0, fmt.Errorf("deleting %d orders: %w", len(ids), err)
	}
	return int(tag.RowsAffected()), nil
}

type itemRow struct {
	OrderID string
	order.LineItem
}

func (s *OrderStore) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := s.pool.Query(ctx, listItemsSQL, parseUUIDs(ids))
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemRow, error) {
		var (
			it  itemRow
			qty int32
		)
		err := row.Scan(&it.OrderID, &it.ID, &it.ProductIDs, &qty, &it.UnitPrice, &it.Discount, &it.Total)
		it.Quantity = int(qty)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it.LineItem)
		}
	}
	return nil
}

// orderScan collects the destinations shared by every order query.
type orderScan struct {
	o          order.Order
	status     string
	payment    string
	totalItems int32
	couponID   *string
}

func (s *orderScan) dest() []any {
	o := &s.o
	return []any{
		&o.ID, &o.Code, &o.UserID, &s.status, &s.payment, &s.totalItems,
		&o.Subtotal, &o.Discount, &o.Tax, &o.GrandTotal,
		&s.couponID, &o.CouponRedeemed, &o.ShippingAddressID,
		&o.DeliveryInstructions, &o.ArDeliveryInstructions, &o.CardMessage, &o.ArCardMessage,
		&o.CardImage, &o.Satisfaction, &o.CancelReason,
		&o.PlacedAt, &o.ConfirmedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	}
}

func (s *orderScan) finish() order.Order {
	s.o.Status = order.Status(s.status)
	s.o.Payment = order.Payment(s.payment)
	s.o.TotalItems = int(s.totalItems)
	if s.couponID != nil {
		s.o.CouponID = *s.couponID
	}
	return s.o
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var s orderScan
	err := row.Scan(s.dest()...)
	return s.finish(), err
}

func scanHydratedOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		s          orderScan
		couponCode *string
		a          order.Address
	)
	dest := append(s.dest(), &couponCode,
		&a.RecipientName, &a.SenderPhone, &a.ReceiverPhone, &a.Street, &a.City, &a.Country, &a.Notes,
	)
	err := row.Scan(dest...)

	o := s.finish()
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	a.ID = o.ShippingAddressID
	o.ShippingAddress = &a
	return o, err
}

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	q querier
}

func (t *orderTx) LockUser(ctx context.Context, userID string) error {
	if _, err := t.q.Exec(ctx, lockUserSQL, userID); err != nil {
		return fmt.Errorf("locking user %q: %w", userID, err)
	}
	return nil
}

func (t *orderTx) HasOngoing(ctx context.Context, userID string) (bool, error) {
	var ok bool
	if err := t.q.QueryRow(ctx, hasOngoingSQL, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking ongoing order of %q: %w", userID, err)
	}
	return ok, nil
}

func (t *orderTx) CreateAddress(ctx context.Context, a *order.Address) error {
	_, err := t.q.Exec(ctx, insertAddressSQL,
		a.ID, a.RecipientName, a.SenderPhone, a.ReceiverPhone, a.Street, a.City, a.Country, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("creating address: %w", err)
	}
	return nil
}

func (t *orderTx) AddressExists(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	var ok bool
	if err := t.q.QueryRow(ctx, addressExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking address %q: %w", id, err)
	}
	return ok, nil
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	var couponID *string
	if o.CouponID != "" {
		couponID = &o.CouponID
	}

	_, err := t.q.Exec(ctx, insertOrderSQL,
		o.ID, o.Code, o.UserID, string(o.Status), string(o.Payment), o.TotalItems,
		o.Subtotal, o.Discount, o.Tax, o.GrandTotal,
		couponID, o.CouponRedeemed, o.ShippingAddressID,
		o.DeliveryInstructions, o.ArDeliveryInstructions, o.CardMessage, o.ArCardMessage,
		o.CardImage, o.Satisfaction, o.CancelReason, o.PlacedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if uniqueViolationOn(err, orderCodeConstraint) {
			return order.ErrDuplicateCode
		}
		return fmt.Errorf("creating order %q: %w", o.Code, err)
	}

	for i, it := range o.Items {
		_, err := t.q.Exec(ctx, insertItemSQL,
			it.ID, o.ID, i, it.ProductIDs, it.Quantity, it.UnitPrice, it.Discount, it.Total,
		)
		if err != nil {
			return fmt.Errorf("creating item %d of order %q: %w", i, o.Code, err)
		}
	}
	return nil
}

func (t *orderTx) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	if !isUUID(id) {
		return nil, order.ErrNotFound
	}

	rows, err := t.q.Query(ctx, getOrderForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", id, err)
	}
	return &o, nil
}

func (t *orderTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.q.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.Payment), o.CouponRedeemed, o.ShippingAddressID,
		o.DeliveryInstructions, o.ArDeliveryInstructions,
		o.CardMessage, o.ArCardMessage, o.CardImage,
		o.Satisfaction, o.CancelReason,
		o.ConfirmedAt, o.DeliveredAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) FindCouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCouponByCode(ctx, t.q, code)
}

func (t *orderTx) GetCouponForUpdate(ctx context.Context, id string) (*coupon.Coupon, error) {
	return getCouponForUpdate(ctx, t.q, id)
}

func (t *orderTx) CountUserRedemptions(ctx context.Context, couponID, userID, excludeOrderID string) (int, error) {
	var n int64
	err := t.q.QueryRow(ctx, countUserRedemptionsSQL, couponID, userID, excludeOrderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions of coupon %q: %w", couponID, err)
	}
	return int(n), nil
}

func (t *orderTx) RedeemCoupon(ctx context.Context, couponID, userID string) (bool, error) {
	tag, err := t.q.Exec(ctx, incrementCouponUsageSQL, couponID)
	if err != nil {
		return false, fmt.Errorf("incrementing usage of coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := t.q.Exec(ctx, addCouponRedeemerSQL, couponID, userID); err != nil {
		return false, fmt.Errorf("recording redeemer of coupon %q: %w", couponID, err)
	}
	return true, nil
}
