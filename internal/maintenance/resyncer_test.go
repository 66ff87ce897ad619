package maintenance_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/remindd/internal/maintenance"
)

type countingResyncer struct {
	calls atomic.Int64
}

func (c *countingResyncer) Resync(context.Context) error {
	c.calls.Add(1)
	return nil
}

// waitFor polls check at short intervals until it returns true or the deadline
// elapses. This avoids fixed time.Sleep calls that cause flaky tests.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestScheduler_RejectsBadExpression(t *testing.T) {
	if _, err := maintenance.NewScheduler(maintenance.Config{
		Engine:   &countingResyncer{},
		CronExpr: "not a cron line",
	}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestScheduler_ResyncsOnTick(t *testing.T) {
	r := &countingResyncer{}
	s, err := maintenance.NewScheduler(maintenance.Config{
		Engine:   r,
		Interval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, 3*time.Second, func() bool { return r.calls.Load() >= 2 })
}

func TestScheduler_StopHaltsLoop(t *testing.T) {
	r := &countingResyncer{}
	s, err := maintenance.NewScheduler(maintenance.Config{
		Engine:   r,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.Start(context.Background())
	waitFor(t, 3*time.Second, func() bool { return r.calls.Load() >= 1 })
	s.Stop()

	after := r.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if r.calls.Load() != after {
		t.Fatalf("resync kept running after stop: %d -> %d", after, r.calls.Load())
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

	next, err := maintenance.NextRunTime("0 * * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	if _, err := maintenance.NextRunTime("* * *", after); err == nil {
		t.Fatal("expected error for malformed expression")
	}
}
