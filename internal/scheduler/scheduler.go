// Package scheduler drives periodic leaderboard snapshot generation.
//
// Each Job owns a ticker. Ticks never block on the work they start: runs are
// dispatched onto a bounded pool and at most one run per period is pending
// at any time, so a slow generation makes later ticks for the same period
// no-ops instead of piling up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tbourn/go-xp-backend/internal/config"
	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/observability"
)

// Dispatch sources, used as a metric label.
const (
	SourceStartup = "startup"
	SourceTick    = "tick"
	SourceTrigger = "trigger"
)

// DefaultRunTimeout bounds a single run when Options.RunTimeout is unset.
const DefaultRunTimeout = 2 * time.Minute

// ErrStopTimeout is returned by Stop when in-flight runs outlive the grace
// period.
var ErrStopTimeout = errors.New("scheduler: stop timed out")

// Generator builds one snapshot. LeaderboardService satisfies it.
type Generator interface {
	Generate(ctx context.Context, p domain.Period) (*domain.LeaderboardSnapshot, error)
}

// Job regenerates Period every Every.
type Job struct {
	Period domain.Period
	Every  time.Duration
}

// Ticker is the subset of time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

// Options tunes the worker pool.
type Options struct {
	Workers    int
	RunTimeout time.Duration
	NewTicker  func(time.Duration) Ticker
}

// Scheduler runs Jobs on a bounded pool.
type Scheduler struct {
	gen  Generator
	jobs []Job
	opts Options
	sem  *semaphore.Weighted

	mu      sync.Mutex
	pending map[domain.Period]bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// JobsFromConfig returns the all-time, weekly and daily jobs.
func JobsFromConfig(c config.SchedulerConfig) []Job {
	return []Job{
		{Period: domain.PeriodAllTime, Every: c.AllTimeEvery},
		{Period: domain.PeriodWeekly, Every: c.WeeklyEvery},
		{Period: domain.PeriodDaily, Every: c.DailyEvery},
	}
}

// New builds a stopped scheduler.
func New(gen Generator, jobs []Job, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newRealTicker
	}
	return &Scheduler{
		gen:     gen,
		jobs:    jobs,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		pending: make(map[domain.Period]bool),
	}
}

// Start runs every job once and then on its interval until ctx is done or
// Stop is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, j := range s.jobs {
		s.dispatch(j.Period, SourceStartup)
		s.wg.Add(1)
		go s.loop(j)
	}
	log.Info().Int("jobs", len(s.jobs)).Int("workers", s.opts.Workers).Msg("scheduler started")
}

func (s *Scheduler) loop(j Job) {
	defer s.wg.Done()
	t := s.opts.NewTicker(j.Every)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C():
			s.dispatch(j.Period, SourceTick)
		}
	}
}

// Trigger asks for an early run of p. It reports whether a run was
// scheduled; false means one is already pending or the scheduler is not
// running.
func (s *Scheduler) Trigger(p domain.Period) bool {
	if !p.Valid() {
		return false
	}
	return s.dispatch(p, SourceTrigger)
}

func (s *Scheduler) dispatch(p domain.Period, source string) bool {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil || s.pending[p] {
		s.mu.Unlock()
		return false
	}
	s.pending[p] = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	observability.SchedulerDispatches.WithLabelValues(string(p), source).Inc()
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.pending, p)
			s.mu.Unlock()
		}()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		if err := s.runOnce(ctx, p); err != nil {
			log.Error().Err(err).Str("period", string(p)).Str("source", source).Msg("scheduled snapshot failed")
		}
	}()
	return true
}

// runOnce generates one snapshot under the run timeout. A panic in the
// generator is turned into an error.
func (s *Scheduler) runOnce(ctx context.Context, p domain.Period) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.SchedulerPanics.Inc()
			err = fmt.Errorf("snapshot %s panicked: %v", p, r)
		}
	}()
	rctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()
	_, err = s.gen.Generate(rctx, p)
	return err
}

// RunAll generates every job's period concurrently on the pool and returns
// the joined errors. It works whether or not the scheduler was started.
func (s *Scheduler) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var errs []error
	for _, j := range s.jobs {
		p := j.Period
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
			if err := s.runOnce(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop cancels the tickers and in-flight runs and waits up to timeout for
// them to return.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
