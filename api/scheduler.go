/*
scheduler.go - Capacity sweep scheduler

PURPOSE:
  Periodically purges expired recurrence expansions and reports upcoming
  days whose delivery count is near, at or over capacity, so dispatch can
  react before the day arrives.

DESIGN:
  - Runs on a cron schedule in Eastern time (robfig/cron)
  - Each run looks at today plus HorizonDays-1 following days
  - Findings are logged; nothing is mutated
  - Overlapping runs are skipped, a slow store never stacks sweeps

USAGE:
  sweeper := NewCapacitySweeper(svc, logger, "0 6 * * *", 14)
  sweeper.Start(ctx)
  // ... later
  sweeper.Stop()

SEE ALSO:
  - scheduling/service.go: Range, PurgeExpansionCache
  - config/config.go: sweep.cron, sweep.horizon_days
*/
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/scheduling"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	From    calendar.Day
	To      calendar.Day
	Purged  int
	Flagged []scheduling.DayCapacity
}

// CapacitySweeper handles scheduled capacity checks.
type CapacitySweeper struct {
	Service     *scheduling.Service
	Logger      *zap.Logger
	Spec        string
	HorizonDays int

	// Today returns the first day swept. Defaults to calendar.Today.
	Today func() calendar.Day

	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running sync.Mutex
}

// NewCapacitySweeper creates a new sweeper.
func NewCapacitySweeper(svc *scheduling.Service, logger *zap.Logger, spec string, horizonDays int) *CapacitySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacitySweeper{
		Service:     svc,
		Logger:      logger,
		Spec:        spec,
		HorizonDays: horizonDays,
		Today:       calendar.Today,
	}
}

// Start schedules the sweep. It fails on an invalid cron spec.
func (s *CapacitySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(calendar.Eastern))
	if _, err := c.AddFunc(s.Spec, func() { s.RunNow(s.runCtx) }); err != nil {
		s.cancel()
		return fmt.Errorf("schedule capacity sweep %q: %w", s.Spec, err)
	}
	c.Start()
	s.cron = c

	s.Logger.Info("capacity sweeper started",
		zap.String("spec", s.Spec),
		zap.Int("horizon_days", s.HorizonDays),
	)
	return nil
}

// Stop stops the cron and waits for a running sweep to finish.
func (s *CapacitySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
	s.Logger.Info("capacity sweeper stopped")
}

// RunNow performs one sweep immediately. A sweep already in progress makes
// this call a no-op returning an empty report.
func (s *CapacitySweeper) RunNow(ctx context.Context) (SweepReport, error) {
	if !s.running.TryLock() {
		s.Logger.Info("capacity sweep already running; skipping")
		return SweepReport{}, nil
	}
	defer s.running.Unlock()

	today := calendar.Today
	if s.Today != nil {
		today = s.Today
	}
	horizon := s.HorizonDays
	if horizon <= 0 {
		horizon = 14
	}

	report := SweepReport{From: today()}
	report.To = report.From.AddDays(horizon - 1)
	report.Purged = s.Service.PurgeExpansionCache()

	days, err := s.Service.Range(ctx, report.From, report.To)
	if err != nil {
		s.Logger.Error("capacity sweep failed",
			zap.String("from", report.From.Key()),
			zap.String("to", report.To.Key()),
			zap.Error(err),
		)
		return report, err
	}

	for _, d := range days {
		if !d.Status.IsWarning() {
			continue
		}
		report.Flagged = append(report.Flagged, d)
		s.Logger.Warn("day near or over capacity",
			zap.String("date", d.Day.Key()),
			zap.String("status", string(d.Status)),
			zap.Int("count", d.Count),
			zap.Int("limit", d.Limit),
		)
	}

	s.Logger.Info("capacity sweep completed",
		zap.String("from", report.From.Key()),
		zap.String("to", report.To.Key()),
		zap.Int("purged", report.Purged),
		zap.Int("flagged", len(report.Flagged)),
	)
	return report, nil
}
