package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitForDelivery(t *testing.T, ch <-chan Delivery, timeout time.Duration) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(timeout):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestTimerScheduler_FiresAndEmitsDelivery(t *testing.T) {
	s := NewTimerScheduler(nil, nil)
	defer s.Close()
	ctx := context.Background()

	if err := s.ScheduleAt(ctx, 7, "Stretch", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	d := waitForDelivery(t, s.Deliveries(), 2*time.Second)
	if d.ID != 7 || d.Title != "Stretch" {
		t.Fatalf("delivery = %+v", d)
	}
	if len(s.ScheduledIDs()) != 0 {
		t.Fatalf("fired entry must leave the queue, got %v", s.ScheduledIDs())
	}
}

func TestTimerScheduler_ReplaceSameID(t *testing.T) {
	s := NewTimerScheduler(nil, nil)
	defer s.Close()
	ctx := context.Background()

	if err := s.ScheduleAt(ctx, 1, "Old", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.ScheduleAt(ctx, 1, "New", time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := s.ScheduledIDs(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("queue must hold a single entry per id, got %v", got)
	}

	d := waitForDelivery(t, s.Deliveries(), 2*time.Second)
	if d.Title != "New" {
		t.Fatalf("replaced entry must carry the new title, got %q", d.Title)
	}
}

func TestTimerScheduler_PastTimeNeverFires(t *testing.T) {
	s := NewTimerScheduler(nil, nil)
	defer s.Close()

	if err := s.ScheduleAt(context.Background(), 3, "Yesterday", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := s.ScheduledIDs(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("past entry must still occupy the queue, got %v", got)
	}

	select {
	case d := <-s.Deliveries():
		t.Fatalf("past entry fired: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerScheduler_CancelAll(t *testing.T) {
	s := NewTimerScheduler(nil, nil)
	defer s.Close()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := s.ScheduleAt(ctx, i, "R", time.Now().Add(50*time.Millisecond)); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}
	if err := s.CancelAll(ctx); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if got := s.ScheduledIDs(); len(got) != 0 {
		t.Fatalf("queue must be empty after cancel all, got %v", got)
	}

	select {
	case d := <-s.Deliveries():
		t.Fatalf("cancelled entry fired: %+v", d)
	case <-time.After(150 * time.Millisecond):
	}
}

type recordingPresenter struct {
	mu   sync.Mutex
	seen []Delivery
}

func (p *recordingPresenter) Present(_ context.Context, d Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, d)
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestTimerScheduler_PresentsOnFire(t *testing.T) {
	rec := &recordingPresenter{}
	s := NewTimerScheduler(rec, nil)
	defer s.Close()

	if err := s.ScheduleAt(context.Background(), 5, "Tea", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitForDelivery(t, s.Deliveries(), 2*time.Second)

	if rec.count() != 1 {
		t.Fatalf("presenter calls = %d, want 1", rec.count())
	}
}
