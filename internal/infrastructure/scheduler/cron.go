package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsRelay/internal/ports"
)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler triggers the job on a cron expression and once at start.
// Overlapping triggers are skipped while a job is still running.
type CronScheduler struct {
	spec string
	loc  *time.Location
	log  *slog.Logger

	mu sync.Mutex
	c  *cron.Cron
	wg sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// ValidateSpec reports whether spec parses as a 5-field expression or descriptor.
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	return nil
}

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronScheduler{spec: spec, loc: loc, log: log.With("component", "cron")}
}

// Start schedules job and fires it immediately in the background.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("nil job")
	}
	schedule, err := specParser.Parse(c.spec)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", c.spec, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil {
		return nil
	}

	logger := cronLogger{log: c.log}
	runner := cron.New(cron.WithParser(specParser), cron.WithLocation(c.loc), cron.WithLogger(logger))
	wrapped := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(time.Now())
	}))

	runner.Schedule(schedule, wrapped)
	runner.Start()
	c.c = runner
	c.log.Info("scheduler started", "spec", c.spec, "tz", c.loc.String())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		wrapped.Run()
	}()
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = c.Stop(context.Background())
		}()
	}
	return nil
}

// Stop halts scheduling and waits for a running job unless ctx expires first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.c
	c.c = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}
	stopped := runner.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running job: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
