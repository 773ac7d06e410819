// Package schedule runs reconciliation passes on a cron expression with
// single-flight semantics: a pass that is still running when the next tick
// arrives is not started again.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc performs one reconciliation pass.
type RunFunc func(ctx context.Context) error

// Scheduler triggers a RunFunc per its cron schedule.
type Scheduler struct {
	sched  cron.Schedule
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// New creates a scheduler for the given cron expression.
func New(expr string, logger *slog.Logger) (*Scheduler, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sched: sched, logger: logger}, nil
}

// NextRun returns the next scheduled run time after the last completed pass.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastRun
	if last.IsZero() {
		last = time.Now()
	}
	return s.sched.Next(last)
}

// tryBegin claims the single-flight slot; returns false when a pass is still
// in progress or the schedule has not elapsed.
func (s *Scheduler) tryBegin(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	last := s.lastRun
	if last.IsZero() {
		last = now.Add(-24 * time.Hour)
	}
	if now.Before(s.sched.Next(last)) {
		return false
	}
	s.running = true
	return true
}

// TriggerNow runs fn immediately, bypassing the cron schedule but not the
// single-flight slot: it reports false without running when a pass is
// already in flight. The pass counts as a completed run, so the next tick
// is computed from its finish time.
func (s *Scheduler) TriggerNow(ctx context.Context, fn RunFunc) (bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false, nil
	}
	s.running = true
	s.mu.Unlock()

	err := fn(ctx)
	s.finish(time.Now())
	return true, err
}

func (s *Scheduler) finish(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = now
}

// Run drives the schedule until the context is cancelled. Passes run on the
// calling goroutine's group; a failed pass is logged and the schedule keeps
// going.
func (s *Scheduler) Run(ctx context.Context, fn RunFunc) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !s.tryBegin(now) {
				continue
			}
			if err := fn(ctx); err != nil {
				s.logger.Error("scheduled pass failed", slog.String("error", err.Error()))
			}
			s.finish(time.Now())
		}
	}
}
