package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"sunsense/internal/logger"
	"sunsense/internal/metrics"
)

// Player errors
var (
	ErrQueueFull     = errors.New("audio queue full")
	ErrPlayerClosed  = errors.New("audio player is closed")
	ErrNoAudioDevice = errors.New("no audio output configured")
)

// Output is anything that can sound a clip: a speaker, a file renderer, a
// browser connection.
type Output interface {
	Play(ctx context.Context, clip Clip) error
}

// PlayerConfig holds player configuration
type PlayerConfig struct {
	Outputs   []Output
	QueueSize int
	// Upper bound for one output call
	Timeout time.Duration
}

// Player is a fire-and-forget front for one or more outputs. Play only
// enqueues; a single goroutine feeds the outputs in order.
type Player struct {
	outputs []Output
	queue   chan Clip
	timeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	played  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewPlayer creates a player. Call Start before Play.
func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Player{
		outputs: cfg.Outputs,
		queue:   make(chan Clip, cfg.QueueSize),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the playback goroutine
func (p *Player) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Play enqueues the clip and returns immediately
func (p *Player) Play(_ context.Context, clip Clip) error {
	if p.closed.Load() {
		return ErrPlayerClosed
	}
	if clip.Empty() {
		return nil
	}
	if len(p.outputs) == 0 {
		p.failed.Add(1)
		metrics.AudioClipsTotal.WithLabelValues("failed").Inc()
		return ErrNoAudioDevice
	}

	select {
	case p.queue <- clip:
		return nil
	default:
		p.dropped.Add(1)
		metrics.AudioClipsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops playback. Clips still queued are dropped; the clip being
// played is allowed to finish within its timeout.
func (p *Player) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.cancel()
	p.wg.Wait()
}

func (p *Player) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case clip := <-p.queue:
			for _, out := range p.outputs {
				p.playOne(out, clip)
			}
		}
	}
}

func (p *Player) playOne(out Output, clip Clip) {
	log := logger.WithComponent("audio_player")

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("audio output panic recovered")
			metrics.PanicsRecovered.WithLabelValues("audio").Inc()
			p.failed.Add(1)
			metrics.AudioClipsTotal.WithLabelValues("failed").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	if err := out.Play(ctx, clip); err != nil {
		log.Warn().
			Err(err).
			Str("priority", string(clip.Priority)).
			Str("output", fmt.Sprintf("%T", out)).
			Msg("audio output failed")
		p.failed.Add(1)
		metrics.AudioClipsTotal.WithLabelValues("failed").Inc()
		return
	}

	p.played.Add(1)
	metrics.AudioClipsTotal.WithLabelValues("played").Inc()
}

// Stats returns playback counters
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		Played:  p.played.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
	}
}

// PlayerStats holds playback counters
type PlayerStats struct {
	Played  uint64 `json:"played"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}
