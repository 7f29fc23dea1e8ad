package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunsense/internal/audio"
	"sunsense/internal/models"
)

type recordingSink struct {
	mu    sync.Mutex
	shown []models.Notification
	err   error
}

func (s *recordingSink) Show(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
	return s.err
}

func (s *recordingSink) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.shown...)
}

type recordingAudio struct {
	mu    sync.Mutex
	clips []audio.Clip
	err   error
	panic bool
}

func (a *recordingAudio) Play(_ context.Context, clip audio.Clip) error {
	if a.panic {
		panic("no sound card")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clips = append(a.clips, clip)
	return a.err
}

func (a *recordingAudio) all() []audio.Clip {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audio.Clip(nil), a.clips...)
}

func fixedClock(hour int) func() time.Time {
	return func() time.Time { return time.Date(2024, 6, 1, hour, 30, 0, 0, time.Local) }
}

func TestEngineTriggerWithoutSound(t *testing.T) {
	sink, sound := &recordingSink{}, &recordingAudio{}
	e := NewEngine(sink, sound, Options{})

	require.NoError(t, e.Trigger(context.Background(), models.KindError, "T", "D", false))

	shown := sink.all()
	require.Len(t, shown, 1)
	assert.Equal(t, models.KindError, shown[0].Kind)
	assert.Equal(t, "T", shown[0].Title)
	assert.Equal(t, "D", shown[0].Description)
	assert.Equal(t, 5000, shown[0].DurationMs)
	assert.Equal(t, models.RuleManual, shown[0].Rule)
	assert.Empty(t, sound.all())
}

func TestEngineTriggerSoundFollowsKind(t *testing.T) {
	tests := []struct {
		kind models.Kind
		want models.Priority
	}{
		{models.KindError, models.PriorityHigh},
		{models.KindWarning, models.PriorityMedium},
		{models.KindInfo, models.PriorityLow},
		{models.KindSuccess, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			sink, sound := &recordingSink{}, &recordingAudio{}
			e := NewEngine(sink, sound, Options{})

			require.NoError(t, e.Trigger(context.Background(), tt.kind, "T", "D", true))
			clips := sound.all()
			require.Len(t, clips, 1)
			assert.Equal(t, tt.want, clips[0].Priority)
			assert.Len(t, sink.all(), 1)
		})
	}
}

func TestEngineTriggerBypassesDedup(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil, Options{})

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Trigger(context.Background(), models.KindInfo, "same", "same", false))
	}
	assert.Len(t, sink.all(), 3)
}

func TestEngineTriggerUnknownKindShownAsInfo(t *testing.T) {
	sink, sound := &recordingSink{}, &recordingAudio{}
	e := NewEngine(sink, sound, Options{})

	require.NoError(t, e.Trigger(context.Background(), "fatal", "T", "D", true))
	assert.Equal(t, models.KindInfo, sink.all()[0].Kind)
	assert.Equal(t, models.PriorityLow, sound.all()[0].Priority)
}

func TestEngineEvaluateDispatchesWithTones(t *testing.T) {
	sink, sound := &recordingSink{}, &recordingAudio{}
	e := NewEngine(sink, sound, Options{Clock: fixedClock(10)})

	snap := models.Snapshot{
		Alerts: []models.MaintenanceAlert{
			alert("1", models.SeverityHigh),
			alert("2", models.SeverityLow),
		},
		ForecastAccuracy: ptr(80.0),
		BatterySchedule:  []models.BatteryScheduleEntry{chargeEntry()},
	}

	fired := e.Evaluate(context.Background(), snap)
	require.Len(t, fired, 3)
	assert.Equal(t, fired, sink.all())

	clips := sound.all()
	require.Len(t, clips, 3)
	assert.Equal(t, models.PriorityHigh, clips[0].Priority)
	assert.Len(t, clips[0].Segments, 3)
	assert.Equal(t, models.PriorityMedium, clips[1].Priority)
	assert.Equal(t, models.PriorityLow, clips[2].Priority)

	assert.Empty(t, e.Evaluate(context.Background(), snap))
	assert.Len(t, sink.all(), 3)
	assert.Equal(t, uint64(2), e.Stats().Passes)
}

func TestEngineSnapshotHourOverridesClock(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil, Options{Clock: fixedClock(3)})

	snap := models.Snapshot{BatterySchedule: []models.BatteryScheduleEntry{chargeEntry()}}
	assert.Empty(t, e.Evaluate(context.Background(), snap))

	snap.CurrentHour = ptr(10)
	assert.Len(t, e.Evaluate(context.Background(), snap), 1)
}

func TestEngineAudioFailureStillShows(t *testing.T) {
	for name, sound := range map[string]*recordingAudio{
		"error": {err: errors.New("device unavailable")},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			e := NewEngine(sink, sound, Options{})

			fired := e.Evaluate(context.Background(), models.Snapshot{
				Alerts: []models.MaintenanceAlert{alert("1", models.SeverityHigh)},
			})
			assert.Len(t, fired, 1)
			assert.Len(t, sink.all(), 1)
		})
	}
}

func TestEngineWithoutAudio(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil, Options{})

	require.NoError(t, e.Trigger(context.Background(), models.KindError, "T", "D", true))
	assert.Len(t, sink.all(), 1)
}

func TestEngineSinkErrorDoesNotStopPass(t *testing.T) {
	sink := &recordingSink{err: errors.New("toast layer gone")}
	e := NewEngine(sink, nil, Options{})

	fired := e.Evaluate(context.Background(), models.Snapshot{Alerts: []models.MaintenanceAlert{
		alert("1", models.SeverityHigh),
		alert("2", models.SeverityMedium),
	}})
	assert.Len(t, fired, 2)
	assert.Len(t, sink.all(), 2)
	assert.True(t, e.State().Notified.HasFired("2"))
}

func TestEngineStartupMessages(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil, Options{
		WelcomeDelay:     10 * time.Millisecond,
		HealthCheckDelay: 20 * time.Millisecond,
		PanelCount:       8,
	})
	e.Start()
	defer e.Close()

	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)

	shown := sink.all()
	assert.Equal(t, models.KindSuccess, shown[0].Kind)
	assert.Equal(t, "SunSense AI Active", shown[0].Title)
	assert.Equal(t, 4000, shown[0].DurationMs)
	assert.Equal(t, models.RuleStartup, shown[0].Rule)

	assert.Equal(t, models.KindInfo, shown[1].Kind)
	assert.Equal(t, "System Health Check Complete", shown[1].Title)
	assert.Equal(t, "All systems operational. Monitoring 8 solar panels.", shown[1].Description)
	assert.Equal(t, models.PriorityNone, shown[1].Priority)
}

func TestEngineCloseCancelsStartupMessages(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil, Options{
		WelcomeDelay:     30 * time.Millisecond,
		HealthCheckDelay: 40 * time.Millisecond,
	})
	e.Start()
	e.Close()
	e.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sink.all())

	e.Start()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, sink.all(), "start after close is a no-op")
}

func TestSinksFanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("offline")}
	c := &recordingSink{}

	err := Sinks{a, b, c}.Show(context.Background(), models.Notification{Title: "x"})
	assert.Error(t, err)
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
	assert.Len(t, c.all(), 1)

	assert.NoError(t, Sinks{a, NopSink{}}.Show(context.Background(), models.Notification{}))
}
