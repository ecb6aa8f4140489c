package readmodel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

// SyncError reports a view that could not be brought in line with its order.
type SyncError struct {
	Collection Collection
	OrderID    string
	Err        error
}

func (e *SyncError) Error() string {
	return "sync " + string(e.Collection) + " for order " + e.OrderID + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error { return e.Err }

// OrderLoader returns the latest committed order or order.ErrNotFound.
type OrderLoader interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Options tunes the per-collection retry.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.InitialInterval == 0 {
		o.InitialInterval = 50 * time.Millisecond
	}
}

// Reflector is the only writer of the derived views. Calls for the same
// order are serialized and always read the latest committed order, so a
// slow reflection can never overwrite a newer one.
type Reflector struct {
	orders   OrderLoader
	store    Store
	locks    *keyedMutex
	opts     Options
	failures metric.Int64Counter
	now      func() time.Time
}

var _ order.Reflector = (*Reflector)(nil)

// NewReflector creates a Reflector recording failures on meter.
func NewReflector(orders OrderLoader, store Store, meter metric.Meter, opts Options) (*Reflector, error) {
	opts.setDefaults()

	failures, err := meter.Int64Counter("orders.reflect.failures",
		metric.WithDescription("Read model synchronizations that failed after retries"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	return &Reflector{
		orders:   orders,
		store:    store,
		locks:    newKeyedMutex(),
		opts:     opts,
		failures: failures,
		now:      time.Now,
	}, nil
}

func (r *Reflector) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.opts.MaxRetries), ctx))
}

func (r *Reflector) sync(ctx context.Context, o *order.Order, c Collection, present bool) error {
	now := r.now()
	return r.retry(ctx, func() error {
		switch c {
		case CollectionOngoing:
			if present {
				return r.store.UpsertOngoing(ctx, OngoingFor(o, now))
			}
			return r.store.DeleteOngoing(ctx, o.ID)
		case CollectionHistory:
			if present {
				return r.store.UpsertHistory(ctx, HistoryFor(o, now))
			}
			return r.store.DeleteHistory(ctx, o.ID)
		case CollectionCancel:
			if present {
				return r.store.UpsertCancellation(ctx, CancellationFor(o, now))
			}
			return r.store.DeleteCancellation(ctx, o.ID)
		}
		return backoff.Permanent(errors.Errorf("unknown collection %q", c))
	})
}

func (r *Reflector) fail(ctx context.Context, lg *zap.Logger, c Collection, orderID string, err error) error {
	r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", string(c))))
	lg.Error("Read model sync failed",
		zap.String("collection", string(c)),
		zap.Error(err),
	)
	return &SyncError{Collection: c, OrderID: orderID, Err: err}
}

// Reflect brings every view in line with the current state of the order.
// Each view is synced independently; the returned error joins the failures.
func (r *Reflector) Reflect(ctx context.Context, orderID string) error {
	unlock := r.locks.Lock(orderID)
	defer unlock()

	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	o, err := r.orders.Get(ctx, orderID)
	if errors.Is(err, order.ErrNotFound) {
		// Deleted orders keep their audit entries.
		if err := r.retry(ctx, func() error { return r.store.DeleteOngoing(ctx, orderID) }); err != nil {
			return r.fail(ctx, lg, CollectionOngoing, orderID, err)
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load order")
	}

	lg = lg.With(zap.String("order_code", o.Code))
	want := Plan(o.Status)

	var errs error
	for _, c := range Collections {
		if err := r.sync(ctx, o, c, want.Has(c)); err != nil {
			errs = multierr.Append(errs, r.fail(ctx, lg, c, orderID, err))
		}
	}
	return errs
}

// ForgetOngoing removes the ongoing entries of deleted orders.
func (r *Reflector) ForgetOngoing(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	unlock := r.locks.LockAll(orderIDs)
	defer unlock()

	if err := r.retry(ctx, func() error { return r.store.DeleteOngoing(ctx, orderIDs...) }); err != nil {
		lg := zctx.From(ctx).With(zap.Strings("order_ids", orderIDs))
		return r.fail(ctx, lg, CollectionOngoing, orderIDs[0], err)
	}
	return nil
}
