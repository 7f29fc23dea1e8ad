package models

import (
	"strings"
	"time"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// Normalize trims identifiers and canonicalizes the severity casing
// ("high" and " HIGH " both become "High").
func (a *MaintenanceAlert) Normalize() {
	a.ID = strings.TrimSpace(a.ID)
	a.PanelID = strings.TrimSpace(a.PanelID)
	a.AlertType = strings.TrimSpace(a.AlertType)
	a.Severity = Severity(titleCase(string(a.Severity)))
}

// Normalize trims the entry's text fields and canonicalizes the action casing.
// The time range keeps its inner spacing since it is part of the dedup key.
func (e *BatteryScheduleEntry) Normalize() {
	e.TimeRange = TimeRange(strings.TrimSpace(string(e.TimeRange)))
	e.Action = Action(titleCase(string(e.Action)))
	e.Reason = strings.TrimSpace(e.Reason)
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}
