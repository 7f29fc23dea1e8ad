// Package hub pushes notifications and tone clips to connected dashboard
// clients over websockets.
package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sunsense/internal/audio"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// Message types sent to clients
const (
	TypeConnected = "connected"
	TypeToast     = "toast"
	TypeTone      = "tone"
	TypeHeartbeat = "heartbeat"
)

// ErrClosed is returned when broadcasting on a closed hub
var ErrClosed = errors.New("hub closed")

// Message is the JSON frame sent to dashboard clients
type Message struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification,omitempty"`
	Clip         *audio.Clip          `json:"clip,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Config tunes the hub
type Config struct {
	// Per-client buffer; a client that falls this far behind is dropped
	ClientBuffer   int
	WriteTimeout   time.Duration
	Heartbeat      time.Duration
	AllowedOrigins []string
}

type client struct {
	id     string
	send   chan Message
	gone   chan struct{} // closed when the hub drops the client
	status websocket.StatusCode
	reason string
}

// Hub fans messages out to every connected client. It implements
// alerts.NotificationSink through Show and audio.Output through Play.
type Hub struct {
	cfg Config
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// New creates a hub
func New(cfg Config) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		log:     logger.WithComponent("hub"),
		clients: make(map[string]*client),
	}
}

// Show broadcasts a toast message
func (h *Hub) Show(_ context.Context, n models.Notification) error {
	return h.Broadcast(Message{Type: TypeToast, Notification: &n})
}

// Play broadcasts a tone clip for the browser to synthesize
func (h *Hub) Play(_ context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}
	return h.Broadcast(Message{Type: TypeTone, Clip: &clip})
}

// Broadcast queues msg for every client without blocking. Clients whose
// buffer is full are disconnected.
func (h *Hub) Broadcast(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn().Str("client_id", id).Msg("client too slow, disconnecting")
			metrics.HubMessagesDropped.Inc()
			c.status, c.reason = websocket.StatusPolicyViolation, "too slow"
			h.removeLocked(id)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades GET /ws and streams messages until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.AllowedOrigins}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	c, err := h.register()
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(c.id)

	log := h.log.With().Str("client_id", c.id).Logger()
	log.Info().Msg("dashboard client connected")

	// The dashboard never sends anything; CloseRead handles control frames
	// and cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, Message{Type: TypeConnected, Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dashboard client disconnected")
			return

		case <-c.gone:
			conn.Close(c.status, c.reason)
			return

		case msg := <-c.send:
			if err := h.write(ctx, conn, msg); err != nil {
				log.Debug().Err(err).Msg("write to client failed")
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, Message{Type: TypeHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *Hub) register() (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	c := &client{
		id:     uuid.NewString(),
		send:   make(chan Message, h.cfg.ClientBuffer),
		gone:   make(chan struct{}),
		status: websocket.StatusGoingAway,
		reason: "server shutting down",
	}
	h.clients[c.id] = c
	metrics.HubClients.Set(float64(len(h.clients)))
	return c, nil
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.gone)
	metrics.HubClients.Set(float64(len(h.clients)))
}

// Close disconnects every client and rejects further broadcasts
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id := range h.clients {
		h.removeLocked(id)
	}
}
