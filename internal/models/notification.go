package models

import "time"

// Kind is the visual style of a notification
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// IsValid reports whether k is one of the known kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindSuccess, KindError, KindWarning, KindInfo:
		return true
	default:
		return false
	}
}

// Priority selects the audible tone pattern. PriorityNone plays nothing.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityForKind maps a notification kind to the tone used by manual triggers.
func PriorityForKind(k Kind) Priority {
	switch k {
	case KindError:
		return PriorityHigh
	case KindWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rule names the origin of a notification
type Rule string

const (
	RuleMaintenance Rule = "maintenance"
	RuleForecast    Rule = "forecast"
	RuleBattery     Rule = "battery"
	RuleManual      Rule = "manual"
	RuleStartup     Rule = "startup"
)

// Navigation targets resolved by the dashboard router
const (
	RouteMaintenance = "/maintenance"
	RouteBattery     = "/battery"
)

// Link is the optional call-to-action attached to a notification
type Link struct {
	Label string `json:"label" msgpack:"label"`
	Route string `json:"route" msgpack:"route"`
}

// Notification is one human-visible event produced by an evaluation pass or
// a manual trigger. It is transient and never persisted.
type Notification struct {
	Kind        Kind     `json:"kind" msgpack:"kind"`
	Title       string   `json:"title" msgpack:"title"`
	Description string   `json:"description" msgpack:"description"`
	DurationMs  int      `json:"duration_ms" msgpack:"duration_ms"`
	Action      *Link    `json:"action,omitempty" msgpack:"action,omitempty"`
	Priority    Priority `json:"priority,omitempty" msgpack:"priority,omitempty"`
	Rule        Rule     `json:"rule" msgpack:"rule"`
}

// Duration returns DurationMs as a time.Duration
func (n Notification) Duration() time.Duration {
	return time.Duration(n.DurationMs) * time.Millisecond
}
