package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler. Cycle errors are
// logged and never stop the schedule; the next tick reconciles from storage.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if ctx.Err() != nil {
			s.logger.Info("shutting down, cycle skipped", "trigger", trigger)
			return
		}
		_, err := s.pipeline.RunCycle(ctx, trigger)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrStateConflict):
			s.logger.Warn("cycle lost state race", "error", err)
		default:
			s.logger.Error("cycle failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
