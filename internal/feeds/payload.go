// Package feeds converts the wire form of the three dashboard feeds into an
// engine snapshot and ships a sample snapshot for demo mode.
package feeds

import (
	"errors"
	"fmt"
	"math"
	"time"

	"sunsense/internal/logger"
	"sunsense/internal/models"
)

var (
	ErrInvalidAccuracy = errors.New("forecast_accuracy must be between 0 and 100")
	ErrInvalidHour     = errors.New("current_hour must be between 0 and 23")
	ErrNegativePower   = errors.New("power_kw must not be negative")
)

// Feed names used in rejections
const (
	FeedAlerts   = "alerts"
	FeedForecast = "forecast_accuracy"
	FeedSchedule = "battery_schedule"
	FeedHour     = "current_hour"
)

// Clock skew tolerated before a future-dated alert is logged
const maxClockSkew = time.Minute

// Payload is one snapshot of the feeds as pushed over HTTP or Kafka
type Payload struct {
	Alerts           []AlertInput    `json:"alerts"`
	ForecastAccuracy *float64        `json:"forecast_accuracy,omitempty"`
	BatterySchedule  []ScheduleInput `json:"battery_schedule"`
	CurrentHour      *int            `json:"current_hour,omitempty"`
}

// AlertInput is the input format for maintenance alerts (with string timestamp)
type AlertInput struct {
	ID        string `json:"id"`
	PanelID   string `json:"panel_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ScheduleInput struct {
	TimeRange string  `json:"time_range"`
	Action    string  `json:"action"`
	Reason    string  `json:"reason"`
	PowerKW   float64 `json:"power_kw"`
}

// Rejection describes a feed item dropped from the snapshot. Index is the
// position within the feed; it is zero for the scalar feeds.
type Rejection struct {
	Feed    string `json:"feed"`
	Index   int    `json:"index"`
	AlertID string `json:"alert_id,omitempty"`
	Error   string `json:"error"`
}

// Snapshot converts the payload. Every bad item is dropped on its own and
// reported; the other feeds still go through so one broken feed never keeps
// the remaining rules from running. An out-of-range accuracy leaves the
// forecast unset and an out-of-range hour falls back to the engine clock.
func (p Payload) Snapshot(now time.Time) (models.Snapshot, []Rejection) {
	snap := models.Snapshot{ReceivedAt: now.UTC()}
	var rejected []Rejection

	if acc := p.ForecastAccuracy; acc != nil {
		if math.IsNaN(*acc) || *acc < 0 || *acc > 100 {
			rejected = append(rejected, Rejection{Feed: FeedForecast, Error: ErrInvalidAccuracy.Error()})
		} else {
			v := *acc
			snap.ForecastAccuracy = &v
		}
	}

	if h := p.CurrentHour; h != nil {
		if *h < 0 || *h > 23 {
			rejected = append(rejected, Rejection{Feed: FeedHour, Error: ErrInvalidHour.Error()})
		} else {
			v := *h
			snap.CurrentHour = &v
		}
	}

	snap.BatterySchedule = make([]models.BatteryScheduleEntry, 0, len(p.BatterySchedule))
	for i, in := range p.BatterySchedule {
		if in.PowerKW < 0 || math.IsNaN(in.PowerKW) {
			rejected = append(rejected, Rejection{Feed: FeedSchedule, Index: i, Error: ErrNegativePower.Error()})
			continue
		}
		entry := models.BatteryScheduleEntry{
			TimeRange: models.TimeRange(in.TimeRange),
			Action:    models.Action(in.Action),
			Reason:    in.Reason,
			PowerKW:   in.PowerKW,
		}
		entry.Normalize()
		// Malformed ranges are kept; the battery rule skips them per pass
		snap.BatterySchedule = append(snap.BatterySchedule, entry)
	}

	snap.Alerts = make([]models.MaintenanceAlert, 0, len(p.Alerts))
	for i, in := range p.Alerts {
		alert, err := in.alert()
		if err == nil {
			err = alert.Validate()
		}
		if err != nil {
			rejected = append(rejected, Rejection{
				Feed:    FeedAlerts,
				Index:   i,
				AlertID: in.ID,
				Error:   err.Error(),
			})
			continue
		}

		if skew := alert.Timestamp.Sub(now); skew > maxClockSkew {
			log := logger.WithComponent("feeds")
			log.Warn().
				Str("alert_id", alert.ID).
				Dur("skew", skew).
				Msg("alert timestamp is ahead of the local clock")
		}
		snap.Alerts = append(snap.Alerts, alert)
	}

	return snap, rejected
}

func (in AlertInput) alert() (models.MaintenanceAlert, error) {
	a := models.MaintenanceAlert{
		ID:        in.ID,
		PanelID:   in.PanelID,
		AlertType: in.AlertType,
		Severity:  models.Severity(in.Severity),
	}
	if in.Timestamp != "" {
		ts, err := models.ParseTimestamp(in.Timestamp)
		if err != nil {
			return a, fmt.Errorf("timestamp: %w", err)
		}
		a.Timestamp = ts
	}
	a.Normalize()
	return a, nil
}
