package alerts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunsense/internal/models"
)

func ptr[T any](v T) *T { return &v }

func alert(id string, sev models.Severity) models.MaintenanceAlert {
	return models.MaintenanceAlert{ID: id, PanelID: "Panel-" + id, AlertType: "Hotspot suspected", Severity: sev}
}

func TestEvaluateMaintenanceSeverities(t *testing.T) {
	snap := models.Snapshot{Alerts: []models.MaintenanceAlert{
		alert("1", models.SeverityHigh),
		alert("2", models.SeverityMedium),
		alert("3", models.SeverityLow),
		alert("4", "Critical"),
	}}

	next, events, err := Evaluate(NewState(), snap, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	high := events[0]
	assert.Equal(t, models.KindError, high.Kind)
	assert.Equal(t, "Critical Alert: Hotspot suspected", high.Title)
	assert.Equal(t, "Panel Panel-1 requires immediate attention", high.Description)
	assert.Equal(t, 10000, high.DurationMs)
	assert.Equal(t, models.PriorityHigh, high.Priority)
	require.NotNil(t, high.Action)
	assert.Equal(t, models.RouteMaintenance, high.Action.Route)

	medium := events[1]
	assert.Equal(t, models.KindWarning, medium.Kind)
	assert.Equal(t, "Maintenance Alert: Hotspot suspected", medium.Title)
	assert.Equal(t, "Panel Panel-2 - Medium priority", medium.Description)
	assert.Equal(t, 6000, medium.DurationMs)
	assert.Equal(t, models.PriorityMedium, medium.Priority)
	assert.Nil(t, medium.Action)

	for _, id := range []string{"1", "2", "3", "4"} {
		assert.True(t, next.Notified.HasFired(id), "alert %s should be marked", id)
	}
}

func TestEvaluateAlertRedeliveryFiresOnce(t *testing.T) {
	snap := models.Snapshot{Alerts: []models.MaintenanceAlert{alert("1", models.SeverityHigh)}}

	st := NewState()
	total := 0
	for i := 0; i < 5; i++ {
		var events []models.Notification
		st, events, _ = Evaluate(st, snap, 0)
		total += len(events)
	}
	assert.Equal(t, 1, total)
}

func TestEvaluateLowAlertSuppressedForever(t *testing.T) {
	st, events, _ := Evaluate(NewState(), models.Snapshot{Alerts: []models.MaintenanceAlert{alert("9", models.SeverityLow)}}, 0)
	assert.Empty(t, events)
	assert.True(t, st.Notified.HasFired("9"))

	// the same id escalated later is still suppressed
	_, events, _ = Evaluate(st, models.Snapshot{Alerts: []models.MaintenanceAlert{alert("9", models.SeverityHigh)}}, 0)
	assert.Empty(t, events)
}

func TestEvaluateKeepsInputOrder(t *testing.T) {
	snap := models.Snapshot{Alerts: []models.MaintenanceAlert{
		alert("b", models.SeverityMedium),
		alert("a", models.SeverityHigh),
	}}
	_, events, _ := Evaluate(NewState(), snap, 0)
	require.Len(t, events, 2)
	assert.Equal(t, models.KindWarning, events[0].Kind)
	assert.Equal(t, models.KindError, events[1].Kind)
}

func TestEvaluateDoesNotModifyPreviousState(t *testing.T) {
	prev := NewState()
	_, _, _ = Evaluate(prev, models.Snapshot{
		Alerts:           []models.MaintenanceAlert{alert("1", models.SeverityHigh)},
		ForecastAccuracy: ptr(70.0),
	}, 0)

	assert.Equal(t, 0, prev.Notified.Len())
	assert.Nil(t, prev.LastAccuracy)
}

func TestForecastAccuracySequence(t *testing.T) {
	st := NewState()
	var fired []models.Notification
	for _, v := range []float64{90, 80, 70, 70, 85} {
		var events []models.Notification
		st, events, _ = Evaluate(st, models.Snapshot{ForecastAccuracy: ptr(v)}, 0)
		fired = append(fired, events...)
	}

	require.Len(t, fired, 2)
	assert.Equal(t, models.KindWarning, fired[0].Kind)
	assert.Equal(t, "Forecast Accuracy Warning", fired[0].Title)
	assert.Equal(t, "Current accuracy: 80% - Below optimal threshold", fired[0].Description)
	assert.Equal(t, 5000, fired[0].DurationMs)
	assert.Equal(t, models.PriorityMedium, fired[0].Priority)

	assert.Equal(t, models.KindError, fired[1].Kind)
	assert.Equal(t, "Low Forecast Accuracy", fired[1].Title)
	assert.Equal(t, "Current accuracy: 70% - System recalibration recommended", fired[1].Description)
	assert.Equal(t, 8000, fired[1].DurationMs)
	assert.Equal(t, models.PriorityHigh, fired[1].Priority)

	require.NotNil(t, st.LastAccuracy)
	assert.Equal(t, 85.0, *st.LastAccuracy)
}

func TestForecastRule(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		last    *float64
		want    models.Kind
		fires   bool
	}{
		{"first observation below warning", 80, nil, models.KindWarning, true},
		{"first observation healthy", 92, nil, "", false},
		{"boundary 85 is healthy", 85, ptr(80.0), "", false},
		{"boundary 75 is a warning", 75, ptr(80.0), models.KindWarning, true},
		{"just below 75 is an error", 74.9, ptr(80.0), models.KindError, true},
		{"unchanged value", 70, ptr(70.0), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := ForecastRule(tt.current, tt.last)
			assert.Equal(t, tt.fires, ok)
			assert.Equal(t, tt.want, n.Kind)
		})
	}
}

func TestForecastReturnToSameValueNotReflagged(t *testing.T) {
	st, events, _ := Evaluate(NewState(), models.Snapshot{ForecastAccuracy: ptr(92.0)}, 0)
	assert.Empty(t, events)
	st, events, _ = Evaluate(st, models.Snapshot{ForecastAccuracy: ptr(92.0)}, 0)
	assert.Empty(t, events)

	// a missing reading leaves the last value alone
	st, _, _ = Evaluate(st, models.Snapshot{}, 0)
	require.NotNil(t, st.LastAccuracy)
	assert.Equal(t, 92.0, *st.LastAccuracy)
}

func chargeEntry() models.BatteryScheduleEntry {
	return models.BatteryScheduleEntry{
		TimeRange: "10:00-15:00",
		Action:    models.ActionCharge,
		Reason:    "Peak solar production",
		PowerKW:   8.5,
	}
}

func TestBatteryReminderFiresOncePerWindow(t *testing.T) {
	snap := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{chargeEntry()}}

	st, events, err := Evaluate(NewState(), snap, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	n := events[0]
	assert.Equal(t, models.KindInfo, n.Kind)
	assert.Equal(t, "Battery Optimization Reminder", n.Title)
	assert.Contains(t, n.Description, "Charge")
	assert.Contains(t, n.Description, "8.5")
	assert.Equal(t, "Charge battery during 10:00-15:00 - Peak solar production (8.5 kW)", n.Description)
	assert.Equal(t, 7000, n.DurationMs)
	assert.Equal(t, models.PriorityLow, n.Priority)
	require.NotNil(t, n.Action)
	assert.Equal(t, models.RouteBattery, n.Action.Route)
	assert.Equal(t, "Charge-10:00-15:00", st.LastScheduleKey)

	st, events, _ = Evaluate(st, snap, 10)
	assert.Empty(t, events, "same window, same hour")

	_, events, _ = Evaluate(st, snap, 11)
	assert.Empty(t, events, "hour no longer matches")
}

func TestBatteryIdleAndOtherHoursSkipped(t *testing.T) {
	snap := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{
		{TimeRange: "06:00 - 10:00", Action: models.ActionIdle, Reason: "Low solar generation"},
		{TimeRange: "10:00 - 15:00", Action: models.ActionCharge, Reason: "Peak solar production", PowerKW: 8.5},
		{TimeRange: "18:00 - 22:00", Action: models.ActionDischarge, Reason: "Peak electricity pricing", PowerKW: 6.2},
	}}

	st, events, _ := Evaluate(NewState(), snap, 6)
	assert.Empty(t, events)
	assert.Equal(t, "", st.LastScheduleKey)

	st, events, _ = Evaluate(st, snap, 18)
	require.Len(t, events, 1)
	assert.Equal(t, "Discharge battery during 18:00 - 22:00 - Peak electricity pricing (6.2 kW)", events[0].Description)
	assert.Equal(t, "Discharge-18:00 - 22:00", st.LastScheduleKey)
}

func TestBatteryRearmsOnlyOnKeyChange(t *testing.T) {
	charge := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{chargeEntry()}}
	discharge := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{
		{TimeRange: "18:00-22:00", Action: models.ActionDischarge, PowerKW: 6.2},
	}}

	st, events, _ := Evaluate(NewState(), charge, 10)
	require.Len(t, events, 1)

	// next day, same window: still suppressed
	st, events, _ = Evaluate(st, charge, 10)
	assert.Empty(t, events)

	st, events, _ = Evaluate(st, discharge, 18)
	require.Len(t, events, 1)

	_, events, _ = Evaluate(st, charge, 10)
	assert.Len(t, events, 1, "a different key in between re-arms the window")
}

func TestBatteryMalformedRangeFailsClosed(t *testing.T) {
	snap := models.Snapshot{
		Alerts:           []models.MaintenanceAlert{alert("1", models.SeverityHigh)},
		ForecastAccuracy: ptr(80.0),
		BatterySchedule: []models.BatteryScheduleEntry{
			{TimeRange: "soon", Action: models.ActionCharge, PowerKW: 1},
			chargeEntry(),
		},
	}

	st, events, err := Evaluate(NewState(), snap, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidTimeRange))

	var re *RuleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, models.RuleBattery, re.Rule)

	// the other rules and the valid entry still ran
	require.Len(t, events, 3)
	assert.Equal(t, models.RuleMaintenance, events[0].Rule)
	assert.Equal(t, models.RuleForecast, events[1].Rule)
	assert.Equal(t, models.RuleBattery, events[2].Rule)
	assert.Equal(t, "Charge-10:00-15:00", st.LastScheduleKey)
}

func TestBatteryMalformedRangeMarksNothing(t *testing.T) {
	snap := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{
		{TimeRange: "x", Action: models.ActionCharge},
	}}
	st, events, err := Evaluate(NewState(), snap, 10)
	assert.Error(t, err)
	assert.Empty(t, events)
	assert.Equal(t, "", st.LastScheduleKey)
}

func TestBatteryUnknownActionIsPlainReminder(t *testing.T) {
	snap := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{
		{TimeRange: "10:00 - 11:00", Action: "Export", Reason: "Grid request", PowerKW: 3},
	}}
	_, events, err := Evaluate(NewState(), snap, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindInfo, events[0].Kind)
	assert.Equal(t, models.PriorityLow, events[0].Priority)
}

func TestEvaluateUnchangedInputIsIdempotent(t *testing.T) {
	snap := models.Snapshot{
		Alerts: []models.MaintenanceAlert{
			alert("1", models.SeverityHigh),
			alert("2", models.SeverityMedium),
		},
		ForecastAccuracy: ptr(72.0),
		BatterySchedule:  []models.BatteryScheduleEntry{chargeEntry()},
	}

	st, events, _ := Evaluate(NewState(), snap, 10)
	assert.Len(t, events, 4)

	_, events, _ = Evaluate(st, snap, 10)
	assert.Empty(t, events)
}
