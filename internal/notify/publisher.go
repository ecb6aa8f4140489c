package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers an encoded snapshot keyed by order code.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// KafkaPublisher writes snapshots to a Kafka topic. Messages for the same
// order code land on the same partition.
type KafkaPublisher struct {
	w       *kafka.Writer
	brokers []string
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		brokers: brokers,
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Ping succeeds when any broker accepts a connection.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return errors.Wrap(lastErr, "dial kafka")
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher only logs snapshots. Used when no broker is configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher writing to lg.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.lg.Debug("Order snapshot", zap.String("order_code", key), zap.ByteString("payload", payload))
	return nil
}
