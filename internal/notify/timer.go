package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const deliveryBuffer = 16

// TimerScheduler implements Scheduler with in-process timers. It stands in
// for the OS notification queue: one armed timer per reminder id, replaced
// wholesale on every resync.
type TimerScheduler struct {
	logger     *slog.Logger
	presenter  Presenter
	deliveries chan Delivery
	done       chan struct{}

	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool
}

func NewTimerScheduler(presenter Presenter, logger *slog.Logger) *TimerScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		logger:     logger,
		presenter:  presenter,
		deliveries: make(chan Delivery, deliveryBuffer),
		done:       make(chan struct{}),
		timers:     make(map[int64]*time.Timer),
	}
}

// ScheduleAt arms a timer for the reminder. An existing entry for the same id
// is replaced, so the queue never holds two entries for one reminder. A target
// time in the past is accepted and recorded as a dead entry that never fires,
// matching how the OS queue treats expired triggers.
func (s *TimerScheduler) ScheduleAt(_ context.Context, id int64, title string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if prev, ok := s.timers[id]; ok {
		if prev != nil {
			prev.Stop()
		}
		delete(s.timers, id)
	}

	until := time.Until(at)
	if until <= 0 {
		// A nil entry occupies the id without an armed timer.
		s.logger.Debug("target time already passed, entry will not fire",
			"reminder_id", id, "target", at)
		s.timers[id] = nil
		return nil
	}

	s.timers[id] = time.AfterFunc(until, func() {
		s.fire(id, title)
	})
	return nil
}

// CancelAll disarms and forgets every entry.
func (s *TimerScheduler) CancelAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		if t != nil {
			t.Stop()
		}
		delete(s.timers, id)
	}
	return nil
}

func (s *TimerScheduler) Deliveries() <-chan Delivery {
	return s.deliveries
}

// ScheduledIDs returns the ids currently held in the queue, sorted. Dead
// entries for past target times are included: they occupy a slot even though
// they will never fire.
func (s *TimerScheduler) ScheduledIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close disarms all timers and stops delivery emission. In-flight fires are
// dropped rather than blocked.
func (s *TimerScheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, t := range s.timers {
		if t != nil {
			t.Stop()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	close(s.done)
	return nil
}

func (s *TimerScheduler) fire(id int64, title string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	d := Delivery{ID: id, Title: title, FiredAt: time.Now().UTC()}

	if s.presenter != nil {
		if err := s.presenter.Present(context.Background(), d); err != nil {
			s.logger.Warn("present notification failed", "reminder_id", id, "error", err)
		}
	}

	select {
	case s.deliveries <- d:
	case <-s.done:
	}
}
