package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

// Options configures delivery.
type Options struct {
	// Timeout bounds one background delivery including retries.
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.InitialInterval == 0 {
		o.InitialInterval = 200 * time.Millisecond
	}
}

// Dispatcher sends order snapshots through a Publisher, retrying with
// exponential backoff. Background sends are tracked so shutdown can wait
// for them.
type Dispatcher struct {
	pub      Publisher
	lg       *zap.Logger
	opts     Options
	failures metric.Int64Counter
	wg       sync.WaitGroup
}

var _ order.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pub Publisher, lg *zap.Logger, meter metric.Meter, opts Options) (*Dispatcher, error) {
	opts.setDefaults()

	failures, err := meter.Int64Counter("orders.notify.failures",
		metric.WithDescription("Order snapshots that could not be delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	return &Dispatcher{pub: pub, lg: lg, opts: opts, failures: failures}, nil
}

// Push encodes and delivers the snapshot of o, waiting for the outcome.
// Orders without a code are skipped.
func (d *Dispatcher) Push(ctx context.Context, o *order.Order) error {
	if o.Code == "" {
		d.lg.Warn("Skipping snapshot of order without code", zap.String("order_id", o.ID))
		return nil
	}

	payload := SnapshotOf(o).Marshal()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialInterval
	err := backoff.Retry(func() error {
		return d.pub.Publish(ctx, o.Code, payload)
	}, backoff.WithContext(backoff.WithMaxRetries(b, d.opts.MaxRetries), ctx))
	if err != nil {
		d.failures.Add(ctx, 1)
		return errors.Wrapf(err, "publish snapshot %s", o.Code)
	}
	return nil
}

// PushAsync delivers in the background, detached from the caller's
// cancellation. Failures are logged.
func (d *Dispatcher) PushAsync(ctx context.Context, o *order.Order) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
		defer cancel()

		if err := d.Push(ctx, o); err != nil {
			d.lg.Error("Push order snapshot",
				zap.String("order_code", o.Code),
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}()
}

// Shutdown waits for background deliveries or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
