package sql2hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/autom8ter/machine/v4"
	"github.com/autom8ter/sql2hub/errors"
	"github.com/robfig/cron"
)

// Runner performs one run
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// RunnerFunc adapts a function to a Runner
type RunnerFunc func(ctx context.Context) (*RunSummary, error)

func (f RunnerFunc) Run(ctx context.Context) (*RunSummary, error) {
	return f(ctx)
}

// Scheduler triggers a runner on a cron schedule. A tick that arrives while the previous run
// is still in progress is skipped.
type Scheduler struct {
	schedule string
	runner   Runner
	logger   Logger
	cron     *cron.Cron
	machine  machine.Machine
	running  atomic.Bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. The schedule has a leading seconds field or is a descriptor such as @every 1m.
func NewScheduler(schedule string, runner Runner, logger Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New(errors.Configuration, "a runner is required")
	}
	if logger == nil {
		logger = NopLogger()
	}
	s := &Scheduler{
		schedule: schedule,
		runner:   runner,
		logger:   logger,
		cron:     cron.New(),
		machine:  machine.New(),
	}
	if err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "invalid schedule %s", schedule)
	}
	return s, nil
}

// Start starts triggering runs. Runs are cancelled when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info(s.ctx, "scheduler started", map[string]any{"schedule": s.schedule})
	s.cron.Start()
}

// Stop stops the schedule, cancels the run in progress and waits for it to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	return s.machine.Wait()
}

// Running returns true while a run is in progress
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn(s.ctx, "skipping run, previous run still in progress", nil)
		return
	}
	s.machine.Go(s.ctx, func(ctx context.Context) error {
		defer s.running.Store(false)
		summary, err := s.runner.Run(ctx)
		if err != nil {
			tags := map[string]any{"code": errors.Extract(err).Code.String()}
			if summary != nil {
				tags[TagRunID] = summary.RunID
			}
			s.logger.Error(ctx, "scheduled run failed", err, tags)
		}
		return nil
	})
}
