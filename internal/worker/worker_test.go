package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunsense/internal/models"
)

type mockPublisher struct {
	published   atomic.Uint64
	batches     atomic.Uint64
	failBatch   bool
	failSingles bool
}

func (m *mockPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	if m.failSingles {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *mockPublisher) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	if m.failBatch {
		return errors.New("broker unavailable")
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(envelopes)))
	return nil
}

func testEnvelope() *models.Envelope {
	return models.NewEnvelope(models.Notification{
		Kind:  models.KindWarning,
		Title: "Forecast Accuracy Warning",
		Rule:  models.RuleForecast,
	}, "test-node")
}

func TestRelay_PublishesEverything(t *testing.T) {
	mock := &mockPublisher{}
	r := NewRelay(Config{
		Publisher:    mock,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	for i := 0; i < 25; i++ {
		require.NoError(t, r.Enqueue(testEnvelope()))
	}

	require.Eventually(t, func() bool {
		return r.Stats().Published == 25
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(25), mock.published.Load())
}

func TestRelay_FullBatchPublishesBeforeTimeout(t *testing.T) {
	mock := &mockPublisher{}
	r := NewRelay(Config{
		Publisher:    mock,
		BatchSize:    5,
		BatchTimeout: time.Hour,
	})
	r.Start()
	defer r.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Enqueue(testEnvelope()))
	}

	require.Eventually(t, func() bool {
		return mock.published.Load() == 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), mock.batches.Load())
}

func TestRelay_TimeoutFlushesPartialBatch(t *testing.T) {
	mock := &mockPublisher{}
	r := NewRelay(Config{
		Publisher:    mock,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Enqueue(testEnvelope()))
	}

	require.Eventually(t, func() bool {
		return mock.published.Load() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRelay_FallsBackToIndividualPublish(t *testing.T) {
	mock := &mockPublisher{failBatch: true}
	r := NewRelay(Config{
		Publisher:    mock,
		BatchSize:    4,
		BatchTimeout: 20 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Enqueue(testEnvelope()))
	}

	require.Eventually(t, func() bool {
		return r.Stats().Published == 4
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, r.Stats().Failed)
}

func TestRelay_CountsFailures(t *testing.T) {
	mock := &mockPublisher{failBatch: true, failSingles: true}
	r := NewRelay(Config{
		Publisher:    mock,
		BatchSize:    2,
		BatchTimeout: 20 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	require.NoError(t, r.Enqueue(testEnvelope()))
	require.NoError(t, r.Enqueue(testEnvelope()))

	require.Eventually(t, func() bool {
		return r.Stats().Failed == 2
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, r.Stats().Published)
}

func TestRelay_EnqueueDoesNotBlockWhenFull(t *testing.T) {
	r := NewRelay(Config{Publisher: &mockPublisher{}, QueueSize: 1})
	// not started, so nothing drains the queue

	require.NoError(t, r.Enqueue(testEnvelope()))
	assert.ErrorIs(t, r.Enqueue(testEnvelope()), ErrRelayFull)
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestRelay_StopDrainsQueue(t *testing.T) {
	mock := &mockPublisher{}
	r := NewRelay(Config{
		Publisher:    mock,
		BatchSize:    100,
		BatchTimeout: time.Hour,
	})
	r.Start()

	for i := 0; i < 7; i++ {
		require.NoError(t, r.Enqueue(testEnvelope()))
	}
	r.Stop()

	assert.Equal(t, uint64(7), mock.published.Load())
	assert.ErrorIs(t, r.Enqueue(testEnvelope()), ErrRelayStopped)
	r.Stop()
}
