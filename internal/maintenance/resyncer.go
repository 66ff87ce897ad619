// Package maintenance runs the periodic safety-net resync: even if every
// event-driven resync were missed, the queue converges back to the store on a
// cron schedule.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Resyncer is anything that can rebuild the notification queue from the
// store. *engine.Engine satisfies it.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Config holds the dependencies for the periodic resyncer.
type Config struct {
	Engine   Resyncer
	CronExpr string        // 5-field cron expression; defaults to hourly if empty
	Interval time.Duration // overrides the cron sleep with a fixed tick; for tests
	Logger   *slog.Logger
}

// Scheduler sleeps until the next cron occurrence and triggers a resync.
type Scheduler struct {
	engine   Resyncer
	cronExpr string
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = "0 * * * *"
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   cfg.Engine,
		cronExpr: expr,
		interval: cfg.Interval,
		logger:   logger,
	}, nil
}

// Start begins the resync loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("maintenance resyncer started", "cron", s.cronExpr)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("maintenance resyncer stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		var wait time.Duration
		if s.interval > 0 {
			wait = s.interval
		} else {
			next, err := NextRunTime(s.cronExpr, time.Now())
			if err != nil {
				// Expression was validated at construction; a failure here
				// means something rewrote it, so bail out rather than spin.
				s.logger.Error("compute next resync time failed", "cron", s.cronExpr, "error", err)
				return
			}
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.engine.Resync(ctx); err != nil {
			s.logger.Error("periodic resync failed", "error", err)
			continue
		}
		s.logger.Debug("periodic resync complete")
	}
}

// NextRunTime parses the cron expression and returns the next occurrence
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
