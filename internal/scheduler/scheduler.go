// Package scheduler runs periodic jobs, such as recomputing the dashboard,
// on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "chronosync/internal/log"
)

// Job is one unit of scheduled work. ctx is canceled when the scheduler
// stops.
type Job func(ctx context.Context)

type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates spec (standard five-field cron, or a descriptor such as
// "@hourly") and prepares job. Overlapping runs are skipped and panics are
// recovered and logged.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, spec: spec, job: job, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule in the background. Stopping parent also stops
// the scheduler.
func (s *Scheduler) Start(parent context.Context) {
	go func() {
		select {
		case <-parent.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.spec)
}

// RunNow runs the job synchronously, outside the schedule.
func (s *Scheduler) RunNow() {
	s.run()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped", "spec", s.spec)
}

// Next returns the next activation time, zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.job(s.ctx)
	appLog.Debug("scheduled job finished", "spec", s.spec, "took", time.Since(start).String())
}

// cronLogger routes cron's own logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
