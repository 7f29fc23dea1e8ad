package kafka

import (
	"context"

	"sunsense/internal/models"
)

// Enqueuer accepts envelopes without blocking; worker.Relay implements it.
type Enqueuer interface {
	Enqueue(envelope *models.Envelope) error
}

// Sink publishes every shown notification to the event stream by wrapping it
// in an Envelope and handing it to the relay.
type Sink struct {
	relay Enqueuer
	node  string
}

// NewSink creates a sink that tags envelopes with node
func NewSink(relay Enqueuer, node string) *Sink {
	return &Sink{relay: relay, node: node}
}

// Show implements alerts.NotificationSink. A full relay queue is reported
// as an error; the notification itself has already been decided.
func (s *Sink) Show(_ context.Context, n models.Notification) error {
	return s.relay.Enqueue(models.NewEnvelope(n, s.node))
}
