package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per tick while holding the shared
// lock, so only one worker sweeps at a time.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// Cycle summarizes one RunOnce.
type Cycle struct {
	Skipped bool
	Ran     int
	Failed  []string
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{logg: p.Logger, lock: p.Lock, metrics: p.Metrics, interval: p.Interval}
	if p.Registry != nil {
		s.jobs = p.Registry.Jobs()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then on every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce only returns lock errors. Job failures are logged, counted and
// reported in the Cycle.
func (s *Service) RunOnce(ctx context.Context) (Cycle, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return Cycle{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return Cycle{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	ctx = s.logg.WithField(ctx, "job_count", len(s.jobs))
	s.logg.Info(ctx, "scheduled run starting")

	var cycle Cycle
	for _, job := range s.jobs {
		cycle.Ran++
		if err := s.runJob(ctx, job); err != nil {
			cycle.Failed = append(cycle.Failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_failed", len(cycle.Failed)), "scheduled run complete")
	return cycle, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Info(ctx, "job start")

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(ctx, "job completed")
	return nil
}
