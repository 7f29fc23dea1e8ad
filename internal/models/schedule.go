package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Action is what the battery should be doing during a schedule window
type Action string

const (
	ActionCharge    Action = "Charge"
	ActionDischarge Action = "Discharge"
	ActionIdle      Action = "Idle"
)

// IsValid reports whether a is one of the known actions
func (a Action) IsValid() bool {
	switch a {
	case ActionCharge, ActionDischarge, ActionIdle:
		return true
	default:
		return false
	}
}

// ErrInvalidTimeRange is returned when a time range has no parseable start hour
var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is a schedule window as written by the schedule source,
// e.g. "10:00 - 15:00". The raw text is part of the dedup key.
type TimeRange string

// StartHour returns the hour (0-23) the window opens at.
func (r TimeRange) StartHour() (int, error) {
	start, _, _ := strings.Cut(string(r), "-")
	start = strings.TrimSpace(start)

	hourText, _, _ := strings.Cut(start, ":")
	hour, err := strconv.Atoi(strings.TrimSpace(hourText))
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidTimeRange, string(r), err)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w %q: hour %d out of range", ErrInvalidTimeRange, string(r), hour)
	}
	return hour, nil
}

// BatteryScheduleEntry is one window of the daily battery optimization plan
type BatteryScheduleEntry struct {
	TimeRange TimeRange `json:"time_range"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason"`
	PowerKW   float64   `json:"power_kw"`
}

// Key identifies the recommendation for deduplication: action + "-" + time range.
func (e BatteryScheduleEntry) Key() string {
	return string(e.Action) + "-" + string(e.TimeRange)
}
