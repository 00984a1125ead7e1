// Package scheduler runs periodic maintenance jobs inside the API process.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"clinical-search-api/models"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler manages interval jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels running jobs' context.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

// ScheduleInterval runs job every duration, starting immediately.
func (s *Scheduler) ScheduleInterval(tag string, duration time.Duration, job func(ctx context.Context) error) error {
	_, err := s.scheduler.Every(duration).Tag(tag).SingletonMode().Do(func() {
		if err := job(s.ctx); err != nil {
			slog.Default().Warn("Scheduled job failed", "job", tag, "error", err)
		}
	})
	return err
}

// StatsSource reports embedding cache size.
type StatsSource interface {
	Stats(ctx context.Context) (models.EmbeddingCacheStats, error)
}

// CacheGaugeJob refreshes gauge with the embedding cache entry count.
func CacheGaugeJob(src StatsSource, gauge prometheus.Gauge, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		st, err := src.Stats(ctx)
		if err != nil {
			return err
		}
		gauge.Set(float64(st.Entries))
		return nil
	}
}
