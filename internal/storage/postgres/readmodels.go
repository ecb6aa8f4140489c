package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/readmodel"
)

// Upserts only write when a synced column actually changes. First-insert
// columns (created_at, at, refund_amount) are never overwritten.
const (
	upsertOngoingSQL = `INSERT INTO ongoing_orders (order_id, user_id, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (order_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			payment_status = EXCLUDED.payment_status,
			updated_at = now()
		WHERE (ongoing_orders.user_id, ongoing_orders.status, ongoing_orders.payment_status)
			IS DISTINCT FROM (EXCLUDED.user_id, EXCLUDED.status, EXCLUDED.payment_status)`

	deleteOngoingSQL = `DELETE FROM ongoing_orders WHERE order_id = ANY($1::uuid[])`

	upsertHistorySQL = `INSERT INTO order_history (order_id, user_id, status, notes, ar_notes, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			ar_notes = EXCLUDED.ar_notes,
			updated_at = now()
		WHERE (order_history.user_id, order_history.status, order_history.notes, order_history.ar_notes)
			IS DISTINCT FROM (EXCLUDED.user_id, EXCLUDED.status, EXCLUDED.notes, EXCLUDED.ar_notes)`

	deleteHistorySQL = `DELETE FROM order_history WHERE order_id = $1`

	upsertCancellationSQL = `INSERT INTO order_cancellations
			(order_id, user_id, status, refund_reason, payment_status, refund_amount, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			refund_reason = EXCLUDED.refund_reason,
			payment_status = EXCLUDED.payment_status,
			updated_at = now()
		WHERE (order_cancellations.user_id, order_cancellations.status,
				order_cancellations.refund_reason, order_cancellations.payment_status)
			IS DISTINCT FROM (EXCLUDED.user_id, EXCLUDED.status, EXCLUDED.refund_reason, EXCLUDED.payment_status)`

	deleteCancellationSQL = `DELETE FROM order_cancellations WHERE order_id = $1`

	listOngoingSQL = `SELECT order_id::text, user_id, status, payment_status, created_at, updated_at
		FROM ongoing_orders WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC`

	listHistorySQL = `SELECT order_id::text, user_id, status, notes, ar_notes, at, created_at, updated_at
		FROM order_history WHERE ($1 = '' OR user_id = $1) ORDER BY at DESC`

	listCancellationsSQL = `SELECT order_id::text, user_id, status, refund_reason, payment_status,
			refund_amount, at, created_at, updated_at
		FROM order_cancellations WHERE ($1 = '' OR user_id = $1) ORDER BY at DESC`
)

var (
	_ readmodel.Store  = (*ReadModelStore)(nil)
	_ readmodel.Reader = (*ReadModelStore)(nil)
)

// ReadModelStore persists the ongoing, history and cancellation views.
type ReadModelStore struct {
	pool *pgxpool.Pool
}

// NewReadModelStore returns a ReadModelStore that uses the given pool.
func NewReadModelStore(pool *pgxpool.Pool) *ReadModelStore {
	return &ReadModelStore{pool: pool}
}

func (s *ReadModelStore) UpsertOngoing(ctx context.Context, e readmodel.Ongoing) error {
	_, err := s.pool.Exec(ctx, upsertOngoingSQL,
		e.OrderID, e.UserID, string(e.Status), e.PaymentStatus, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting ongoing order %q: %w", e.OrderID, err)
	}
	return nil
}

func (s *ReadModelStore) DeleteOngoing(ctx context.Context, orderIDs ...string) error {
	ids := parseUUIDs(orderIDs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, deleteOngoingSQL, ids); err != nil {
		return fmt.Errorf("deleting %d ongoing orders: %w", len(ids), err)
	}
	return nil
}

func (s *ReadModelStore) UpsertHistory(ctx context.Context, e readmodel.History) error {
	_, err := s.pool.Exec(ctx, upsertHistorySQL,
		e.OrderID, e.UserID, string(e.Status), e.Notes, e.ArNotes, e.At,
	)
	if err != nil {
		return fmt.Errorf("upserting order history %q: %w", e.OrderID, err)
	}
	return nil
}

func (s *ReadModelStore) DeleteHistory(ctx context.Context, orderID string) error {
	if _, err := s.pool.Exec(ctx, deleteHistorySQL, orderID); err != nil {
		return fmt.Errorf("deleting order history %q: %w", orderID, err)
	}
	return nil
}

func (s *ReadModelStore) UpsertCancellation(ctx context.Context, e readmodel.Cancellation) error {
	_, err := s.pool.Exec(ctx, upsertCancellationSQL,
		e.OrderID, e.UserID, string(e.Status), e.RefundReason, e.PaymentStatus, e.RefundAmount, e.At,
	)
	if err != nil {
		return fmt.Errorf("upserting order cancellation %q: %w", e.OrderID, err)
	}
	return nil
}

func (s *ReadModelStore) DeleteCancellation(ctx context.Context, orderID string) error {
	if _, err := s.pool.Exec(ctx, deleteCancellationSQL, orderID); err != nil {
		return fmt.Errorf("deleting order cancellation %q: %w", orderID, err)
	}
	return nil
}

func (s *ReadModelStore) ListOngoing(ctx context.Context, userID string) ([]readmodel.Ongoing, error) {
	rows, err := s.pool.Query(ctx, listOngoingSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing ongoing orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (readmodel.Ongoing, error) {
		var (
			e      readmodel.Ongoing
			status string
		)
		err := row.Scan(&e.OrderID, &e.UserID, &status, &e.PaymentStatus, &e.CreatedAt, &e.UpdatedAt)
		e.Status = order.Status(status)
		return e, err
	})
}

func (s *ReadModelStore) ListHistory(ctx context.Context, userID string) ([]readmodel.History, error) {
	rows, err := s.pool.Query(ctx, listHistorySQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing order history: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (readmodel.History, error) {
		var (
			e      readmodel.History
			status string
		)
		err := row.Scan(&e.OrderID, &e.UserID, &status, &e.Notes, &e.ArNotes, &e.At, &e.CreatedAt, &e.UpdatedAt)
		e.Status = order.Status(status)
		return e, err
	})
}

func (s *ReadModelStore) ListCancellations(ctx context.Context, userID string) ([]readmodel.Cancellation, error) {
	rows, err := s.pool.Query(ctx, listCancellationsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing order cancellations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (readmodel.Cancellation, error) {
		var (
			e      readmodel.Cancellation
			status string
		)
		err := row.Scan(&e.OrderID, &e.UserID, &status, &e.RefundReason, &e.PaymentStatus,
			&e.RefundAmount, &e.At, &e.CreatedAt, &e.UpdatedAt)
		e.Status = order.Status(status)
		return e, err
	})
}
