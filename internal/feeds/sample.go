package feeds

import (
	"time"

	"sunsense/internal/models"
)

// SampleAccuracy is the forecast accuracy reported by the sample feed
const SampleAccuracy = 92.0

// Sample returns the demo snapshot: five maintenance alerts raised over the
// last day, a healthy forecast and a typical daily battery plan. The hour is
// left unset so the engine clock decides which window is active.
func Sample(now time.Time) models.Snapshot {
	ago := func(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour).UTC() }
	accuracy := SampleAccuracy

	return models.Snapshot{
		Alerts: []models.MaintenanceAlert{
			{ID: "1", PanelID: "Panel-A-12", AlertType: "Hotspot suspected", Severity: models.SeverityHigh, Timestamp: ago(2)},
			{ID: "2", PanelID: "Panel-B-07", AlertType: "Soiling high", Severity: models.SeverityMedium, Timestamp: ago(5)},
			{ID: "3", PanelID: "Panel-C-19", AlertType: "Connection weak", Severity: models.SeverityLow, Timestamp: ago(12)},
			{ID: "4", PanelID: "Panel-A-08", AlertType: "Output below expected", Severity: models.SeverityMedium, Timestamp: ago(18)},
			{ID: "5", PanelID: "Panel-D-15", AlertType: "Temperature anomaly", Severity: models.SeverityHigh, Timestamp: ago(24)},
		},
		ForecastAccuracy: &accuracy,
		BatterySchedule: []models.BatteryScheduleEntry{
			{TimeRange: "06:00 - 10:00", Action: models.ActionIdle, Reason: "Low solar generation"},
			{TimeRange: "10:00 - 15:00", Action: models.ActionCharge, Reason: "Peak solar production", PowerKW: 8.5},
			{TimeRange: "15:00 - 18:00", Action: models.ActionIdle, Reason: "Maintaining charge"},
			{TimeRange: "18:00 - 22:00", Action: models.ActionDischarge, Reason: "Peak electricity pricing", PowerKW: 6.2},
			{TimeRange: "22:00 - 06:00", Action: models.ActionIdle, Reason: "Off-peak hours"},
		},
		ReceivedAt: now.UTC(),
	}
}
