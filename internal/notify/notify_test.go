package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

type recordingPublisher struct {
	mu     sync.Mutex
	fails  int
	calls  int
	keys   []string
	bodies [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fails != 0 {
		if p.fails > 0 {
			p.fails--
		}
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, payload)
	return nil
}

func testOrder() *order.Order {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	delivered := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:         "11111111-1111-1111-1111-111111111111",
		Code:       "CC-1001",
		UserID:     "u1",
		Status:     order.StatusDelivered,
		Payment:    order.PaymentPaid,
		Subtotal:   decimal.RequireFromString("200"),
		Discount:   decimal.RequireFromString("20"),
		Tax:        decimal.Zero,
		GrandTotal: decimal.RequireFromString("180"),
		CouponCode: "SAVE10",
		ShippingAddress: &order.Address{
			SenderPhone:   "+100",
			ReceiverPhone: "+200",
		},
		DeliveryInstructions: "ring twice",
		CardMessage:          "happy birthday",
		PlacedAt:             created,
		DeliveredAt:          &delivered,
		CreatedAt:            created,
	}
}

func newTestDispatcher(t *testing.T, pub Publisher) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(pub, zap.NewNop(), noop.NewMeterProvider().Meter("test"), Options{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return d
}

func TestSnapshotOf(t *testing.T) {
	s := SnapshotOf(testOrder())
	assert.Equal(t, "CC-1001", s.Code)
	assert.Equal(t, "u1", s.Customer)
	assert.Equal(t, "+100", s.SenderPhone)
	assert.Equal(t, "+200", s.ReceiverPhone)
	assert.Equal(t, "SAVE10", s.Coupon)
	assert.Equal(t, "ring twice", s.DeliveryNotes)
	assert.True(t, s.GrandTotal.Equal(decimal.RequireFromString("180")))

	t.Run("NoAddress", func(t *testing.T) {
		o := testOrder()
		o.ShippingAddress = nil
		o.PlacedAt = time.Time{}
		s := SnapshotOf(o)
		assert.Empty(t, s.SenderPhone)
		assert.Equal(t, o.CreatedAt, s.PlacedAt)
	})
}

func TestSnapshotEncode(t *testing.T) {
	raw := SnapshotOf(testOrder()).Marshal()

	got := map[string]string{}
	require.NoError(t, jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		got[string(key)] = v
		return nil
	}))

	assert.Equal(t, "CC-1001", got["code"])
	assert.Equal(t, "2025-03-01", got["createdAt"])
	assert.Equal(t, "2025-03-04", got["deliveredAt"])
	assert.Equal(t, "200.00", got["subtotal"])
	assert.Equal(t, "20.00", got["discount"])
	assert.Equal(t, "0.00", got["tax"])
	assert.Equal(t, "180.00", got["grandTotal"])
	assert.Equal(t, "delivered", got["status"])
	assert.Equal(t, "paid", got["payment"])

	t.Run("NotDelivered", func(t *testing.T) {
		o := testOrder()
		o.DeliveredAt = nil
		raw := SnapshotOf(o).Marshal()
		assert.Contains(t, string(raw), `"deliveredAt":""`)
	})
}

func TestDispatcherPush(t *testing.T) {
	ctx := context.Background()

	t.Run("Delivers", func(t *testing.T) {
		pub := &recordingPublisher{}
		d := newTestDispatcher(t, pub)
		require.NoError(t, d.Push(ctx, testOrder()))
		require.Equal(t, []string{"CC-1001"}, pub.keys)
		assert.Equal(t, SnapshotOf(testOrder()).Marshal(), pub.bodies[0])
	})
	t.Run("RetriesTransientFailure", func(t *testing.T) {
		pub := &recordingPublisher{fails: 2}
		d := newTestDispatcher(t, pub)
		require.NoError(t, d.Push(ctx, testOrder()))
		assert.Equal(t, 3, pub.calls)
		assert.Len(t, pub.keys, 1)
	})
	t.Run("GivesUp", func(t *testing.T) {
		pub := &recordingPublisher{fails: -1}
		d := newTestDispatcher(t, pub)
		require.Error(t, d.Push(ctx, testOrder()))
		assert.Equal(t, 4, pub.calls)
	})
	t.Run("SkipsWithoutCode", func(t *testing.T) {
		pub := &recordingPublisher{}
		d := newTestDispatcher(t, pub)
		o := testOrder()
		o.Code = ""
		require.NoError(t, d.Push(ctx, o))
		assert.Zero(t, pub.calls)
	})
}

func TestDispatcherPushAsync(t *testing.T) {
	pub := &recordingPublisher{fails: -1}
	d := newTestDispatcher(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	d.PushAsync(ctx, testOrder())
	// Caller cancellation must not abort the background send.
	cancel()

	require.NoError(t, d.Shutdown(context.Background()))
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, 4, pub.calls)
}

func TestDispatcherShutdownTimeout(t *testing.T) {
	block := make(chan struct{})
	d := newTestDispatcher(t, blockingPublisher(block))
	d.PushAsync(context.Background(), testOrder())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, d.Shutdown(context.Background()))
}

type blockingPublisher chan struct{}

func (b blockingPublisher) Publish(_ context.Context, _ string, _ []byte) error {
	<-b
	return nil
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), "CC-1", []byte(`{}`)))
}
