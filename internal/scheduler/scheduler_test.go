package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clinical-search-api/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats struct {
	entries int64
	err     error
}

func (f fixedStats) Stats(context.Context) (models.EmbeddingCacheStats, error) {
	return models.EmbeddingCacheStats{Backend: "memory", Entries: f.entries}, f.err
}

func TestCacheGaugeJob(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_entries"})

	job := CacheGaugeJob(fixedStats{entries: 42}, gauge, time.Second)
	require.NoError(t, job(context.Background()))
	assert.Equal(t, 42.0, testutil.ToFloat64(gauge))

	job = CacheGaugeJob(fixedStats{err: errors.New("mongo down")}, gauge, time.Second)
	assert.Error(t, job(context.Background()))
	assert.Equal(t, 42.0, testutil.ToFloat64(gauge), "a failed refresh keeps the last value")
}

func TestScheduler_RunsJobImmediately(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32

	require.NoError(t, s.ScheduleInterval("cache-gauge", time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := NewScheduler()
	jobCtx := make(chan context.Context, 1)

	require.NoError(t, s.ScheduleInterval("capture", time.Hour, func(ctx context.Context) error {
		jobCtx <- ctx
		return nil
	}))
	s.Start()

	var ctx context.Context
	select {
	case ctx = <-jobCtx:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	require.NoError(t, ctx.Err())

	s.Stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
