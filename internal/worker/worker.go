package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// ErrRelayFull is returned by Enqueue when the queue has no free slot.
var ErrRelayFull = errors.New("relay queue full")

// ErrRelayStopped is returned by Enqueue after Stop.
var ErrRelayStopped = errors.New("relay stopped")

// Publisher defines the interface for publishing envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Relay moves dispatched notification envelopes off the evaluation path and
// publishes them in batches.
type Relay struct {
	publisher      Publisher
	queue          chan *models.Envelope
	workers        int
	batchSize      int
	batchTimeout   time.Duration
	publishTimeout time.Duration

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	mu      sync.RWMutex

	// Metrics
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Config holds relay configuration
type Config struct {
	Publisher      Publisher
	QueueSize      int
	Workers        int
	BatchSize      int
	BatchTimeout   time.Duration
	PublishTimeout time.Duration
}

// NewRelay creates a relay; call Start to begin publishing.
func NewRelay(cfg Config) *Relay {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Relay{
		publisher:      cfg.Publisher,
		queue:          make(chan *models.Envelope, cfg.QueueSize),
		workers:        cfg.Workers,
		batchSize:      cfg.BatchSize,
		batchTimeout:   cfg.BatchTimeout,
		publishTimeout: cfg.PublishTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start launches the relay workers
func (r *Relay) Start() {
	log := logger.WithComponent("relay")
	log.Info().
		Int("workers", r.workers).
		Int("batch_size", r.batchSize).
		Dur("batch_timeout", r.batchTimeout).
		Msg("starting notification relay")

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Enqueue hands an envelope to the relay without blocking.
func (r *Relay) Enqueue(envelope *models.Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped.Load() {
		return ErrRelayStopped
	}

	select {
	case r.queue <- envelope:
		metrics.RelayQueueSize.Set(float64(len(r.queue)))
		return nil
	default:
		r.dropped.Add(1)
		metrics.RelayFailedTotal.Inc()
		return ErrRelayFull
	}
}

// Stop closes the queue, lets workers drain what is buffered and waits for
// them. Safe to call more than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	if r.stopped.Swap(true) {
		r.mu.Unlock()
		return
	}
	close(r.queue)
	r.mu.Unlock()

	log := logger.WithComponent("relay")
	log.Info().Msg("stopping notification relay")
	r.wg.Wait()
	r.cancel()
	log.Info().Msg("notification relay stopped")
}

func (r *Relay) worker(id int) {
	defer r.wg.Done()

	log := logger.WithComponent("relay").With().Int("worker_id", id).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("relay worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("relay").Inc()
		}
	}()

	batch := make([]*models.Envelope, 0, r.batchSize)
	timer := time.NewTimer(r.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case envelope, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}
			metrics.RelayQueueSize.Set(float64(len(r.queue)))

			batch = append(batch, envelope)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
				timer.Reset(r.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(r.batchTimeout)
		}
	}
}

// flush publishes a batch, falling back to one-by-one publishing when the
// batch call fails.
func (r *Relay) flush(batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("relay")
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, r.publishTimeout)
	err := r.publisher.PublishBatch(ctx, batch)
	cancel()

	duration := time.Since(start)
	metrics.RelayBatchDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("notification batch published")
		r.published.Add(uint64(len(batch)))
		metrics.RelayPublishedTotal.Add(float64(len(batch)))
		return
	}

	log.Warn().
		Err(err).
		Int("batch_size", len(batch)).
		Msg("batch publish failed, retrying individually")

	for _, envelope := range batch {
		ctx, cancel := context.WithTimeout(r.ctx, r.publishTimeout)
		err := r.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("notification_id", envelope.ID).
				Str("rule", string(envelope.Notification.Rule)).
				Msg("failed to publish notification")
			r.failed.Add(1)
			metrics.RelayFailedTotal.Inc()
			continue
		}
		r.published.Add(1)
		metrics.RelayPublishedTotal.Inc()
	}
}

// Stats returns relay statistics
func (r *Relay) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Queued:    len(r.queue),
	}
}

// Stats holds relay counters
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}
