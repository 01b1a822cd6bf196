// Package jobs runs periodic maintenance: statistics reconciliation and tree
// exports.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Func is one scheduled unit of work.
type Func func(ctx context.Context) error

// Recorder observes job outcomes.
type Recorder interface {
	JobRun(job string, success bool)
}

// Scheduler wraps a cron runner. Runs of the same job never overlap.
type Scheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler returns a stopped scheduler. recorder may be nil.
func NewScheduler(logger *slog.Logger, recorder Recorder) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		recorder: recorder,
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register schedules fn under name using a standard cron expression or a
// descriptor such as "@hourly". An empty spec leaves the job disabled.
func (s *Scheduler) Register(name, spec string, fn Func) error {
	if spec == "" {
		s.logger.Info("job disabled", "job", name)
		return nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	s.entries[name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(name, fn) }))
	s.logger.Info("job scheduled", "job", name, "schedule", spec, "next_run", sched.Next(time.Now()))
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started", "jobs", len(s.Jobs()))
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(name string, fn Func) {
	start := time.Now()
	err := fn(s.ctx)
	if s.recorder != nil {
		s.recorder.JobRun(name, err == nil)
	}
	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "duration", time.Since(start))
}
