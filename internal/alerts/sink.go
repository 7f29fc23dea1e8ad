// Package alerts decides when a dashboard notification should fire. It
// watches the maintenance, forecast-accuracy and battery-schedule feeds,
// deduplicates repeated triggers and drives the audible signal.
package alerts

import (
	"context"
	"errors"
	"fmt"

	"sunsense/internal/audio"
	"sunsense/internal/metrics"
	"sunsense/internal/models"
)

// NotificationSink displays a notification to the user
type NotificationSink interface {
	Show(ctx context.Context, n models.Notification) error
}

// AudioOutput sounds a tone clip. Implementations must not block the caller;
// audio.Player is the usual implementation.
type AudioOutput interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// Sinks fans a notification out to every sink, continuing past failures.
type Sinks []NotificationSink

// Show delivers n to every sink and joins the errors
func (s Sinks) Show(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Show(ctx, n); err != nil {
			metrics.SinkErrors.WithLabelValues(fmt.Sprintf("%T", sink)).Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards notifications
type NopSink struct{}

func (NopSink) Show(context.Context, models.Notification) error { return nil }
