package models

import (
	"errors"
	"time"
)

// Severity is the tier of a maintenance alert
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// MaintenanceAlert is a single panel fault reported by the telemetry source.
// Alerts are immutable once created; the source owns their lifecycle.
type MaintenanceAlert struct {
	// Unique identifier, used for deduplication
	ID string `json:"id"`

	// Panel the alert refers to, e.g. "Panel-A-12"
	PanelID string `json:"panel_id"`

	// Human readable alert type, e.g. "Hotspot suspected"
	AlertType string `json:"alert_type"`

	Severity Severity `json:"severity"`

	Timestamp time.Time `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptyAlertID     = errors.New("alert ID cannot be empty")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
)

// Validate checks the dedup key, the only field the engine cannot do
// without. Panel, type, severity and timestamp are the source's business
// and are passed through as reported.
func (a *MaintenanceAlert) Validate() error {
	if a.ID == "" {
		return ErrEmptyAlertID
	}
	return nil
}

// IsValid reports whether s is one of the known tiers
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}
