package alerts

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sunsense/internal/audio"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// Options tunes an Engine. Zero values fall back to the dashboard defaults.
type Options struct {
	WelcomeDelay     time.Duration
	HealthCheckDelay time.Duration
	PanelCount       int

	// Clock supplies the wall-clock hour when a snapshot carries none
	Clock func() time.Time
}

func (o *Options) setDefaults() {
	if o.WelcomeDelay <= 0 {
		o.WelcomeDelay = time.Second
	}
	if o.HealthCheckDelay <= 0 {
		o.HealthCheckDelay = 3 * time.Second
	}
	if o.PanelCount <= 0 {
		o.PanelCount = 8
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Engine owns one State and dispatches what each evaluation pass decides.
//
// Evaluate must only be called from a single goroutine. Trigger may be called
// from anywhere provided the sink and audio output are safe for concurrent
// use.
type Engine struct {
	sink  NotificationSink
	audio AudioOutput
	opts  Options
	log   zerolog.Logger

	state State

	mu     sync.Mutex
	timers []*time.Timer
	closed atomic.Bool

	passes     atomic.Uint64
	dispatched atomic.Uint64
}

// NewEngine creates an engine. sound may be nil, in which case notifications
// are shown without tones.
func NewEngine(sink NotificationSink, sound AudioOutput, opts Options) *Engine {
	opts.setDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		sink:  sink,
		audio: sound,
		opts:  opts,
		log:   logger.WithComponent("engine"),
		state: NewState(),
	}
}

// Start arms the one-shot welcome and health-check messages. It is a no-op
// on a closed or already started engine.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() || e.timers != nil {
		return
	}

	e.timers = []*time.Timer{
		time.AfterFunc(e.opts.WelcomeDelay, e.welcome),
		time.AfterFunc(e.opts.HealthCheckDelay, e.healthCheck),
	}
	e.log.Info().
		Dur("welcome_delay", e.opts.WelcomeDelay).
		Dur("health_check_delay", e.opts.HealthCheckDelay).
		Msg("engine started")
}

// Close cancels pending startup messages. Safe to call more than once.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.timers {
		t.Stop()
	}
	e.log.Info().Msg("engine closed")
}

func (e *Engine) welcome() {
	if e.closed.Load() {
		return
	}
	err := e.dispatch(context.Background(), models.Notification{
		Kind:        models.KindSuccess,
		Title:       "SunSense AI Active",
		Description: "Real-time monitoring and alerts enabled",
		DurationMs:  welcomeDuration,
		Rule:        models.RuleStartup,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("welcome notification failed")
	}
}

func (e *Engine) healthCheck() {
	if e.closed.Load() {
		return
	}
	desc := fmt.Sprintf("All systems operational. Monitoring %d solar panels.", e.opts.PanelCount)
	if err := e.Trigger(context.Background(), models.KindInfo, "System Health Check Complete", desc, false); err != nil {
		e.log.Warn().Err(err).Msg("health check notification failed")
	}
}

// Evaluate runs one pass against snap, dispatches every notification it
// fires, and returns them. Re-running it on unchanged input fires nothing.
func (e *Engine) Evaluate(ctx context.Context, snap models.Snapshot) []models.Notification {
	start := time.Now()

	hour := e.opts.Clock().Hour()
	if snap.CurrentHour != nil {
		hour = *snap.CurrentHour
	}

	next, events, err := Evaluate(e.state, snap, hour)
	e.state = next
	e.passes.Add(1)
	metrics.EvaluationPasses.Inc()

	if err != nil {
		e.logRuleErrors(err)
	}

	for _, n := range events {
		if derr := e.dispatch(ctx, n); derr != nil {
			e.log.Warn().Err(derr).Str("title", n.Title).Msg("notification delivery failed")
		}
	}

	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	e.log.Debug().
		Int("alerts", len(snap.Alerts)).
		Int("schedule_entries", len(snap.BatterySchedule)).
		Int("hour", hour).
		Int("fired", len(events)).
		Msg("evaluation pass complete")

	return events
}

func (e *Engine) logRuleErrors(err error) {
	var joined interface{ Unwrap() []error }
	errs := []error{err}
	if errors.As(err, &joined) {
		errs = joined.Unwrap()
	}
	for _, one := range errs {
		rule := "unknown"
		var re *RuleError
		if errors.As(one, &re) {
			rule = string(re.Rule)
		}
		metrics.RuleErrors.WithLabelValues(rule).Inc()
		e.log.Warn().Err(one).Str("rule", rule).Msg("rule input skipped")
	}
}

// Trigger shows an ad-hoc notification through the same path as rule
// events, bypassing deduplication. An unknown kind is shown as info.
func (e *Engine) Trigger(ctx context.Context, kind models.Kind, title, description string, playSound bool) error {
	if !kind.IsValid() {
		kind = models.KindInfo
	}

	n := models.Notification{
		Kind:        kind,
		Title:       title,
		Description: description,
		DurationMs:  manualDuration,
		Rule:        models.RuleManual,
	}
	if playSound {
		n.Priority = models.PriorityForKind(kind)
	}
	return e.dispatch(ctx, n)
}

// dispatch sounds the notification's tone, if any, then shows it. Audio
// problems are logged and never stop the notification.
func (e *Engine) dispatch(ctx context.Context, n models.Notification) (err error) {
	if n.Priority != models.PriorityNone {
		e.playTone(ctx, n.Priority)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("notification sink panic recovered")
			metrics.PanicsRecovered.WithLabelValues("sink").Inc()
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	e.dispatched.Add(1)
	metrics.NotificationsTotal.WithLabelValues(string(n.Rule), string(n.Kind)).Inc()
	e.log.Info().
		Str("rule", string(n.Rule)).
		Str("kind", string(n.Kind)).
		Str("title", n.Title).
		Msg("notification fired")

	return e.sink.Show(ctx, n)
}

func (e *Engine) playTone(ctx context.Context, p models.Priority) {
	if e.audio == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("audio output panic recovered")
			metrics.PanicsRecovered.WithLabelValues("audio").Inc()
		}
	}()

	if err := e.audio.Play(ctx, audio.Pattern(p)); err != nil {
		e.log.Warn().Err(err).Str("priority", string(p)).Msg("tone not played")
	}
}

// State returns a copy of the engine state. Like Evaluate, it must be called
// from the evaluating goroutine.
func (e *Engine) State() State {
	return e.state.Clone()
}

// Stats returns engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Passes:     e.passes.Load(),
		Dispatched: e.dispatched.Load(),
	}
}

// Stats holds engine counters
type Stats struct {
	Passes     uint64 `json:"passes"`
	Dispatched uint64 `json:"dispatched"`
}
