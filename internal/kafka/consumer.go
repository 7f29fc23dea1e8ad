package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"sunsense/internal/feeds"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// SnapshotSubmitter receives snapshots decoded from the feed topic
type SnapshotSubmitter interface {
	Submit(snap models.Snapshot) error
}

// FeedConsumer reads feed snapshots pushed by the telemetry source to a
// Kafka topic and submits them for evaluation.
type FeedConsumer struct {
	cfg    kafka.ReaderConfig
	reader *kafka.Reader
	target SnapshotSubmitter
	now    func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewFeedConsumer creates a consumer in the given consumer group
func NewFeedConsumer(brokers []string, topic, groupID string, target SnapshotSubmitter) (*FeedConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return &FeedConsumer{
		cfg: kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  500 * time.Millisecond,
		},
		target: target,
		now:    time.Now,
	}, nil
}

// Start joins the consumer group and consumes until Stop is called
func (c *FeedConsumer) Start() {
	// The reader connects as soon as it is created
	c.reader = kafka.NewReader(c.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)
}

func (c *FeedConsumer) run(ctx context.Context) {
	defer c.wg.Done()

	log := logger.WithComponent("feed_consumer")
	log.Info().
		Str("topic", c.cfg.Topic).
		Str("group_id", c.cfg.GroupID).
		Msg("feed consumer started")
	defer log.Info().Msg("feed consumer stopped")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			log.Error().Err(err).Msg("failed to read feed message")
			metrics.KafkaFeedMessages.WithLabelValues("read_error").Inc()

			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.handle(msg)
	}
}

func (c *FeedConsumer) handle(msg kafka.Message) {
	log := logger.WithComponent("feed_consumer")

	snap, err := c.decode(msg.Value)
	if err != nil {
		log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("discarding malformed feed message")
		metrics.KafkaFeedMessages.WithLabelValues("invalid").Inc()
		return
	}

	if err := c.target.Submit(snap); err != nil {
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("feed snapshot not accepted")
		metrics.KafkaFeedMessages.WithLabelValues("rejected").Inc()
		return
	}
	metrics.KafkaFeedMessages.WithLabelValues("accepted").Inc()
}

// decode turns a feed message into a snapshot. Invalid feed items are
// dropped with a warning, the rest of the snapshot is kept.
func (c *FeedConsumer) decode(data []byte) (models.Snapshot, error) {
	var payload feeds.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.Snapshot{}, err
	}

	snap, rejected := payload.Snapshot(c.now())

	log := logger.WithComponent("feed_consumer")
	for _, r := range rejected {
		metrics.FeedItemsRejected.WithLabelValues("kafka", r.Feed).Inc()
		log.Warn().
			Str("feed", r.Feed).
			Int("index", r.Index).
			Str("alert_id", r.AlertID).
			Str("error", r.Error).
			Msg("feed item rejected")
	}
	return snap, nil
}

// Stop stops reading and closes the reader
func (c *FeedConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
