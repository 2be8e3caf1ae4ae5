// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Jobs receive the base context and never overlap with themselves.
type Scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a scheduler using standard five-field specs and descriptors such as "@every 5m".
func New(baseCtx context.Context) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		baseCtx: baseCtx,
	}
}

// Add registers a named job.
func (s *Scheduler) Add(name, spec string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.baseCtx); err != nil {
			logger.Warn("Scheduled job %s failed: %v", name, err)
			return
		}
		logger.Debug("Scheduled job %s finished in %v", name, time.Since(start))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
	}
	return id, nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started with %d jobs", s.Len())
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Scheduler stopped")
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	f := fields(keysAndValues)
	f["error"] = err
	logger.WithFields(f).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logger.Fields {
	f := make(logger.Fields, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
