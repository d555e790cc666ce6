// Package log adapts the durable message log (Kafka) behind the producer
// and consumer contracts. The topic retains every accepted message; consumer
// groups read it from independently committed cursors.
package log

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers     []string
	Topic       string
	MaxAttempts int
}

// KafkaProducer appends messages to the log topic. Transient broker errors
// are retried MaxAttempts times by the client; exhaustion is reported to the
// caller, which logs a durability-loss event and moves on.
type KafkaProducer struct {
	log    *slog.Logger
	cfg    ProducerConfig
	writer *kafka.Writer
}

func NewKafkaProducer(log *slog.Logger, cfg ProducerConfig) *KafkaProducer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &KafkaProducer{log: log, cfg: cfg}
}

func (p *KafkaProducer) Connect(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return fmt.Errorf("kafka producer: no brokers configured")
	}
	// The writer itself dials lazily; probe one broker now so that a
	// misconfigured address fails at startup instead of at first append.
	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", p.cfg.Brokers[0], err)
	}
	_ = conn.Close()

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        p.cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return nil
}

func (p *KafkaProducer) Append(ctx context.Context, key, value []byte) error {
	if p.writer == nil {
		return apperrors.ErrNotConnected
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	FromBeginning bool
}

// KafkaConsumer reads the log topic as one member of a consumer group. The
// group infrastructure assigns each partition to exactly one member, so two
// consumers with the same GroupID never hold the same partition.
type KafkaConsumer struct {
	log    *slog.Logger
	cfg    ConsumerConfig
	reader *kafka.Reader
}

func NewKafkaConsumer(log *slog.Logger, cfg ConsumerConfig) *KafkaConsumer {
	return &KafkaConsumer{log: log, cfg: cfg}
}

func (c *KafkaConsumer) Connect(_ context.Context) error {
	if len(c.cfg.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: no brokers configured")
	}
	start := kafka.LastOffset
	if c.cfg.FromBeginning {
		start = kafka.FirstOffset
	}
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		Topic:       c.cfg.Topic,
		GroupID:     c.cfg.GroupID,
		StartOffset: start,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return nil
}

// Fetch blocks until the next record is available on one of the partitions
// this member owns. It does NOT advance the group cursor.
func (c *KafkaConsumer) Fetch(ctx context.Context) (domain.Record, error) {
	if c.reader == nil {
		return domain.Record{}, apperrors.ErrNotConnected
	}
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
	}, nil
}

// Commit advances the group cursor past rec. A crash between the store
// write and this call causes redelivery, which the store tolerates.
func (c *KafkaConsumer) Commit(ctx context.Context, rec domain.Record) error {
	if c.reader == nil {
		return apperrors.ErrNotConnected
	}
	return c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	})
}

func (c *KafkaConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
