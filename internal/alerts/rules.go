package alerts

import (
	"errors"
	"fmt"
	"strconv"

	"sunsense/internal/models"
	"sunsense/internal/state"
)

// Forecast accuracy bands, in percent
const (
	AccuracyErrorBelow   = 75.0
	AccuracyWarningBelow = 85.0
)

// Display durations
const (
	maintenanceHighDuration   = 10000
	maintenanceMediumDuration = 6000
	accuracyErrorDuration     = 8000
	accuracyWarningDuration   = 5000
	batteryReminderDuration   = 7000
	manualDuration            = 5000
	welcomeDuration           = 4000
)

// State is everything the engine remembers between passes.
type State struct {
	// Alert ids already handled. Grows monotonically.
	Notified *state.FiredSet

	// Last forecast accuracy seen, nil before the first observation
	LastAccuracy *float64

	// Key of the last battery reminder fired, "" when none has fired
	LastScheduleKey string
}

// NewState returns the state of a fresh engine
func NewState() State {
	return State{Notified: state.NewFiredSet()}
}

// Clone returns a deep copy
func (s State) Clone() State {
	c := State{
		Notified:        s.Notified.Clone(),
		LastScheduleKey: s.LastScheduleKey,
	}
	if s.LastAccuracy != nil {
		v := *s.LastAccuracy
		c.LastAccuracy = &v
	}
	return c
}

// RuleError is a non-fatal failure inside one rule. The pass continues.
type RuleError struct {
	Rule models.Rule
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s rule: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Evaluate runs one pass of all three rules against a snapshot and returns the
// next state and the notifications to dispatch, in rule order maintenance,
// forecast, battery. prev is not modified.
//
// A non-nil error joins the RuleErrors met during the pass. The returned
// state and notifications are still valid and must be used.
func Evaluate(prev State, snap models.Snapshot, currentHour int) (State, []models.Notification, error) {
	next := prev.Clone()
	var events []models.Notification
	var errs []error

	events = append(events, maintenanceRule(next.Notified, snap.Alerts)...)

	if snap.ForecastAccuracy != nil {
		current := *snap.ForecastAccuracy
		if n, ok := ForecastRule(current, next.LastAccuracy); ok {
			events = append(events, n)
		}
		next.LastAccuracy = &current
	}

	fired, key, scheduleErrs := batteryRule(snap.BatterySchedule, currentHour, next.LastScheduleKey)
	events = append(events, fired...)
	next.LastScheduleKey = key
	errs = append(errs, scheduleErrs...)

	return next, events, errors.Join(errs...)
}

// maintenanceRule notifies every High and Medium alert not yet in notified
// and marks every unseen alert, whatever its severity.
func maintenanceRule(notified *state.FiredSet, alerts []models.MaintenanceAlert) []models.Notification {
	var events []models.Notification
	for _, a := range alerts {
		if notified.HasFired(a.ID) {
			continue
		}
		notified.MarkFired(a.ID)

		switch a.Severity {
		case models.SeverityHigh:
			events = append(events, models.Notification{
				Kind:        models.KindError,
				Title:       "Critical Alert: " + a.AlertType,
				Description: fmt.Sprintf("Panel %s requires immediate attention", a.PanelID),
				DurationMs:  maintenanceHighDuration,
				Action:      &models.Link{Label: "View Details", Route: models.RouteMaintenance},
				Priority:    models.PriorityHigh,
				Rule:        models.RuleMaintenance,
			})
		case models.SeverityMedium:
			events = append(events, models.Notification{
				Kind:        models.KindWarning,
				Title:       "Maintenance Alert: " + a.AlertType,
				Description: fmt.Sprintf("Panel %s - %s priority", a.PanelID, a.Severity),
				DurationMs:  maintenanceMediumDuration,
				Priority:    models.PriorityMedium,
				Rule:        models.RuleMaintenance,
			})
		default:
			// Low and unknown tiers are suppressed silently
		}
	}
	return events
}

// ForecastRule decides whether an accuracy reading warrants a notification.
// It fires only when current differs from last; a nil last counts as a change.
func ForecastRule(current float64, last *float64) (models.Notification, bool) {
	if last != nil && *last == current {
		return models.Notification{}, false
	}

	pct := formatNumber(current)
	switch {
	case current < AccuracyErrorBelow:
		return models.Notification{
			Kind:        models.KindError,
			Title:       "Low Forecast Accuracy",
			Description: fmt.Sprintf("Current accuracy: %s%% - System recalibration recommended", pct),
			DurationMs:  accuracyErrorDuration,
			Priority:    models.PriorityHigh,
			Rule:        models.RuleForecast,
		}, true
	case current < AccuracyWarningBelow:
		return models.Notification{
			Kind:        models.KindWarning,
			Title:       "Forecast Accuracy Warning",
			Description: fmt.Sprintf("Current accuracy: %s%% - Below optimal threshold", pct),
			DurationMs:  accuracyWarningDuration,
			Priority:    models.PriorityMedium,
			Rule:        models.RuleForecast,
		}, true
	default:
		return models.Notification{}, false
	}
}

// batteryRule reminds about the non-idle window starting in currentHour,
// unless that same window was the last one reminded about. Entries whose
// start hour cannot be parsed are skipped and reported.
func batteryRule(entries []models.BatteryScheduleEntry, currentHour int, lastKey string) ([]models.Notification, string, []error) {
	var events []models.Notification
	var errs []error

	for i, entry := range entries {
		if entry.Action == models.ActionIdle {
			continue
		}

		key := entry.Key()
		if key == lastKey {
			continue
		}

		startHour, err := entry.TimeRange.StartHour()
		if err != nil {
			errs = append(errs, &RuleError{
				Rule: models.RuleBattery,
				Err:  fmt.Errorf("entry %d: %w", i, err),
			})
			continue
		}
		if startHour != currentHour {
			continue
		}

		lastKey = key
		events = append(events, models.Notification{
			Kind:  models.KindInfo,
			Title: "Battery Optimization Reminder",
			Description: fmt.Sprintf("%s battery during %s - %s (%s kW)",
				entry.Action, entry.TimeRange, entry.Reason, formatNumber(entry.PowerKW)),
			DurationMs: batteryReminderDuration,
			Action:     &models.Link{Label: "View Schedule", Route: models.RouteBattery},
			Priority:   models.PriorityLow,
			Rule:       models.RuleBattery,
		})
	}
	return events, lastKey, errs
}

// formatNumber prints v in its shortest form: 92, 8.5
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
