package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"sunsense/internal/config"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// Producer writes notification envelopes to the notification topic. The
// underlying writer is safe for concurrent use, so relay workers share it.
type Producer struct {
	cfg      config.ProducerConfig
	encoding string
	writer   *kafka.Writer
	closed   atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithEncoding selects the payload encoding (json or msgpack)
func WithEncoding(encoding string) ProducerOption {
	return func(p *Producer) {
		p.encoding = encoding
	}
}

// NewProducer creates a producer for topic. Nothing connects until the
// first write.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	p := &Producer{
		cfg:      cfg,
		encoding: models.EncodingJSON,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // one partition per rule keeps its events ordered
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  codec(cfg.Compression),
			MaxAttempts:  1,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func codec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// message encodes an envelope as a Kafka message
func (p *Producer) message(envelope *models.Envelope) (kafka.Message, error) {
	data, err := envelope.Encode(p.encoding)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	return kafka.Message{
		Key:   []byte(envelope.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "notification_id", Value: []byte(envelope.ID)},
			{Key: "kind", Value: []byte(envelope.Notification.Kind)},
			{Key: "rule", Value: []byte(envelope.Notification.Rule)},
			{Key: "node", Value: []byte(envelope.Node)},
			{Key: "encoding", Value: []byte(p.encoding)},
		},
		Time: envelope.EmittedAt,
	}, nil
}

// Publish sends a single envelope
func (p *Producer) Publish(ctx context.Context, envelope *models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg, err := p.message(envelope)
	if err != nil {
		p.record(0, 1)
		return err
	}

	if err := p.write(ctx, msg); err != nil {
		p.record(0, 1)
		return err
	}
	p.record(1, 0)
	return nil
}

// PublishBatch sends envelopes in one write. Envelopes that fail to encode
// are logged and skipped.
func (p *Producer) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	log := logger.WithComponent("kafka_producer")

	messages := make([]kafka.Message, 0, len(envelopes))
	for _, envelope := range envelopes {
		msg, err := p.message(envelope)
		if err != nil {
			log.Error().
				Err(err).
				Str("notification_id", envelope.ID).
				Str("rule", string(envelope.Notification.Rule)).
				Msg("failed to serialize envelope")
			p.record(0, 1)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}

	if err := p.write(ctx, messages...); err != nil {
		p.record(0, len(messages))
		return err
	}
	p.record(len(messages), 0)
	return nil
}

// write retries with exponential backoff until the context ends
func (p *Producer) write(ctx context.Context, msgs ...kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	backoff := p.cfg.RetryBackoff
	attempts := p.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.KafkaPublishRetries.Inc()
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = p.writer.WriteMessages(ctx, msgs...)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("messages", len(msgs)).
			Dur("backoff", backoff).
			Msg("kafka write failed")
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p *Producer) record(sent, failed int) {
	if sent > 0 {
		p.sent.Add(uint64(sent))
		metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(sent))
	}
	if failed > 0 {
		p.failed.Add(uint64(failed))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.sent.Load(),
		MessagesFailed: p.failed.Load(),
	}
}

// HealthCheck reports an error once the writer has failed without ever
// succeeding.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := p.writer.Stats()
	if stats.Errors > 0 && stats.Writes == 0 {
		return fmt.Errorf("kafka writer has %d errors and no successful writes", stats.Errors)
	}
	return nil
}
