package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sunsense/internal/alerts"
	"sunsense/internal/audio"
	"sunsense/internal/config"
	"sunsense/internal/feeds"
	"sunsense/internal/handlers"
	"sunsense/internal/hub"
	"sunsense/internal/kafka"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/middleware"
	"sunsense/internal/models"
	"sunsense/internal/scheduler"
	"sunsense/internal/worker"
)

// Submit errors
var (
	ErrSnapshotQueueFull = errors.New("snapshot queue full, try again later")
	ErrStopped           = errors.New("processor stopped")
)

// Processor is the host around the notification engine: it accepts feed
// snapshots from HTTP, Kafka and demo mode, runs every evaluation pass on one
// goroutine and wires the engine to the dashboard, audio and event stream.
type Processor struct {
	cfg  *config.Config
	node string

	engine    *alerts.Engine
	hub       *hub.Hub
	player    *audio.Player
	producer  *kafka.Producer
	relay     *worker.Relay
	consumer  *kafka.FeedConsumer
	scheduler *scheduler.Scheduler

	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}

	snapshots  chan models.Snapshot
	reevaluate chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	loopWG     sync.WaitGroup
	wg         sync.WaitGroup

	// Owned by the evaluation loop
	last *models.Snapshot
}

// New builds every component from cfg. Nothing is started and no network
// connection is made until Run.
func New(cfg *config.Config) (*Processor, error) {
	node, _ := os.Hostname()
	if node == "" {
		node = "unknown"
	}

	p := &Processor{
		cfg:        cfg,
		node:       node,
		ready:      make(chan struct{}),
		snapshots:  make(chan models.Snapshot, cfg.Engine.SnapshotBuffer),
		reevaluate: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	p.hub = hub.New(hub.Config{AllowedOrigins: originPatterns(cfg.HTTP.AllowedOrigins)})
	sinks := alerts.Sinks{p.hub}

	if cfg.Kafka.Enabled {
		if err := p.initKafka(); err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka.NewSink(p.relay, p.node))
	}

	if err := p.initAudio(); err != nil {
		return nil, err
	}

	// A nil *audio.Player must not reach the engine as a non-nil interface
	var sound alerts.AudioOutput
	if p.player != nil {
		sound = p.player
	}

	p.engine = alerts.NewEngine(sinks, sound, alerts.Options{
		WelcomeDelay:     cfg.Engine.WelcomeDelay,
		HealthCheckDelay: cfg.Engine.HealthCheckDelay,
		PanelCount:       cfg.Engine.PanelCount,
	})

	p.scheduler = scheduler.New()
	if cfg.Engine.ReevaluateCron != "" {
		err := p.scheduler.AddJob(cfg.Engine.ReevaluateCron, scheduler.JobFunc{
			JobName: "reevaluate",
			Fn:      p.Reevaluate,
		})
		if err != nil {
			return nil, fmt.Errorf("engine.reevaluate_cron: %w", err)
		}
	}

	p.initHTTPServer()
	return p, nil
}

// initKafka initializes the producer, the relay in front of it and the
// optional feed consumer
func (p *Processor) initKafka() error {
	log := logger.WithComponent("processor")
	kc := p.cfg.Kafka

	producer, err := kafka.NewProducer(kc.Brokers, kc.NotificationTopic, kc.Producer,
		kafka.WithEncoding(kc.Encoding))
	if err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	p.producer = producer

	p.relay = worker.NewRelay(worker.Config{
		Publisher:    producer,
		QueueSize:    kc.Producer.QueueSize,
		Workers:      kc.Producer.Workers,
		BatchSize:    kc.Producer.BatchSize,
		BatchTimeout: kc.Producer.BatchTimeout,
	})

	if kc.FeedTopic != "" {
		consumer, err := kafka.NewFeedConsumer(kc.Brokers, kc.FeedTopic, kc.GroupID, p)
		if err != nil {
			return fmt.Errorf("failed to initialize feed consumer: %w", err)
		}
		p.consumer = consumer
	}

	log.Info().
		Strs("brokers", kc.Brokers).
		Str("notification_topic", kc.NotificationTopic).
		Str("feed_topic", kc.FeedTopic).
		Str("encoding", kc.Encoding).
		Msg("kafka initialized")
	return nil
}

func (p *Processor) initAudio() error {
	ac := p.cfg.Audio
	if !ac.Enabled {
		return nil
	}

	var outputs []audio.Output
	if ac.Browser {
		outputs = append(outputs, p.hub)
	}
	if ac.WAVDir != "" {
		wav, err := audio.NewWAVOutput(ac.WAVDir, ac.SampleRate)
		if err != nil {
			return fmt.Errorf("failed to initialize wav output: %w", err)
		}
		outputs = append(outputs, wav)
	}
	if len(outputs) == 0 {
		return nil
	}

	p.player = audio.NewPlayer(audio.PlayerConfig{
		Outputs:   outputs,
		QueueSize: ac.QueueSize,
		Timeout:   ac.PlayTimeout,
	})
	return nil
}

// initHTTPServer builds the router
func (p *Processor) initHTTPServer() {
	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: p.cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/snapshot", handlers.NewSnapshotHandler(handlers.SnapshotConfig{
			Submitter:   p,
			MaxBodySize: p.cfg.HTTP.MaxBodySize,
		}))
		r.Method(http.MethodPost, "/notify", handlers.NewNotifyHandler(p.engine, 0))
	})
	r.Get("/ws", p.hub.ServeHTTP)
	r.Get("/health", p.healthHandler)
	r.Get("/stats", p.statsHandler)
	r.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  p.cfg.HTTP.ReadTimeout,
		WriteTimeout: p.cfg.HTTP.WriteTimeout,
		IdleTimeout:  p.cfg.HTTP.IdleTimeout,
	}
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down gracefully.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("node", p.node).Msg("processor starting")

	ln, err := net.Listen("tcp", p.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.httpServer.Addr, err)
	}
	p.listener = ln

	if p.player != nil {
		p.player.Start()
	}
	if p.relay != nil {
		p.relay.Start()
	}

	p.loopWG.Add(1)
	go p.evaluationLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if p.consumer != nil {
		p.consumer.Start()
	}
	p.scheduler.Start()
	p.engine.Start()

	if p.cfg.Engine.Demo {
		if err := p.Submit(feeds.Sample(time.Now())); err != nil {
			log.Warn().Err(err).Msg("demo snapshot not queued")
		}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	close(p.ready)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

// Addr returns the bound HTTP address once Run has started listening
func (p *Processor) Addr() string {
	<-p.ready
	return p.listener.Addr().String()
}

// Submit queues a snapshot for evaluation without blocking
func (p *Processor) Submit(snap models.Snapshot) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}

	select {
	case p.snapshots <- snap:
		return nil
	default:
		return ErrSnapshotQueueFull
	}
}

// Reevaluate asks the loop to re-run the last snapshot against the current
// hour. Requests coalesce while one is pending.
func (p *Processor) Reevaluate() error {
	select {
	case p.reevaluate <- struct{}{}:
	default:
	}
	return nil
}

// evaluationLoop is the only goroutine that calls engine.Evaluate
func (p *Processor) evaluationLoop() {
	defer p.loopWG.Done()

	ctx := context.Background()
	for {
		select {
		case <-p.done:
			return

		case snap := <-p.snapshots:
			p.last = &snap
			p.engine.Evaluate(ctx, snap)

		case <-p.reevaluate:
			if p.last == nil {
				continue
			}
			p.engine.Evaluate(ctx, p.last.WithoutHour())
		}
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Cancel pending startup messages
	p.engine.Close()

	// 2. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Stop the other snapshot sources
	if p.consumer != nil {
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("feed consumer close error")
		}
	}
	p.scheduler.Stop()

	// 4. Stop evaluating
	p.stopOnce.Do(func() { close(p.done) })
	p.loopWG.Wait()

	// 5. Drain the relay, then close the producer
	if p.relay != nil {
		done := make(chan struct{})
		go func() {
			p.relay.Stop()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("relay drained")
		case <-time.After(15 * time.Second):
			log.Warn().Msg("relay drain timeout - forcing exit")
		}
	}
	if p.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	// 6. In-flight tones may finish or be dropped
	if p.player != nil {
		p.player.Close()
	}
	p.hub.Close()

	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			log.Info().
				Uint64("passes", s.Engine.Passes).
				Uint64("dispatched", s.Engine.Dispatched).
				Int("hub_clients", s.HubClients).
				Int("snapshot_queue", s.SnapshotQueue).
				Msg("stats")
		}
	}
}

// Stats is the /stats payload
type Stats struct {
	Node          string               `json:"node"`
	Engine        alerts.Stats         `json:"engine"`
	HubClients    int                  `json:"hub_clients"`
	SnapshotQueue int                  `json:"snapshot_queue"`
	Audio         *audio.PlayerStats   `json:"audio,omitempty"`
	Relay         *worker.Stats        `json:"relay,omitempty"`
	Producer      *kafka.ProducerStats `json:"producer,omitempty"`
}

// Stats returns current statistics
func (p *Processor) Stats() Stats {
	s := Stats{
		Node:          p.node,
		Engine:        p.engine.Stats(),
		HubClients:    p.hub.Clients(),
		SnapshotQueue: len(p.snapshots),
	}
	if p.player != nil {
		as := p.player.Stats()
		s.Audio = &as
	}
	if p.relay != nil {
		rs := p.relay.Stats()
		s.Relay = &rs
	}
	if p.producer != nil {
		ps := p.producer.Stats()
		s.Producer = &ps
	}
	metrics.HubClients.Set(float64(s.HubClients))
	return s
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	if p.producer != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := p.producer.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.Stats())
}

// originPatterns converts CORS origins to websocket host patterns
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
