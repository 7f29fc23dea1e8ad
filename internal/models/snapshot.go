package models

import "time"

// Snapshot is the latest state of the three feeds, delivered to the engine
// whenever one of them changes.
type Snapshot struct {
	Alerts []MaintenanceAlert `json:"alerts"`

	// Nil when the accuracy feed has not reported
	ForecastAccuracy *float64 `json:"forecast_accuracy,omitempty"`

	BatterySchedule []BatteryScheduleEntry `json:"battery_schedule"`

	// Local wall-clock hour; nil means the engine reads its own clock
	CurrentHour *int `json:"current_hour,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// WithoutHour returns a copy of the snapshot that defers the hour to the
// engine clock. Used for the hourly re-evaluation of the last snapshot.
func (s Snapshot) WithoutHour() Snapshot {
	s.CurrentHour = nil
	return s
}
