package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/metrics"
)

// Access terms are whole days, so a daily sweep is the default cadence.
const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered jobs once at startup and then every interval,
// holding the sweep lock for the whole cycle.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// CycleReport summarizes one pass over the registry.
type CycleReport struct {
	RunID   string
	Skipped bool
	Ran     []string
	Failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("cron service requires a logger")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("cron service requires a sweep lock")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

func (s *Service) Interval() time.Duration {
	return s.interval
}

// Run blocks until ctx is canceled. An interrupted cycle is safe to abandon:
// every job re-reads its candidates on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.cycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	if _, err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron.cycle_failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{RunID: uuid.NewString()}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"cron_run_id": report.RunID,
		"jobs":        strings.Join(s.registry.Names(), ","),
	})

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("sweep lock: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.logg.Info(ctx, "cron.cycle_skipped_lock_held")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	start := time.Now()
	for _, job := range s.registry.Jobs() {
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"failed_jobs": strings.Join(report.Failed, ","),
	})
	if len(report.Failed) > 0 {
		s.logg.Warn(ctx, "cron.cycle_completed_with_failures")
	} else {
		s.logg.Info(ctx, "cron.cycle_completed")
	}
	return report, nil
}

// runJob isolates a job so a failing one does not stop the jobs after it.
func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   name,
		"event": "cron.job",
	})
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())

	if s.metrics != nil {
		s.metrics.ObserveDuration(name, duration)
		if err != nil {
			s.metrics.IncFailure(name)
		} else {
			s.metrics.IncSuccess(name)
		}
	}
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return err
	}
	s.logg.Info(jobCtx, "cron.job_completed")
	return nil
}
