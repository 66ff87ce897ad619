// Package engine keeps three state holders convergent: the persisted reminder
// list, the notification queue, and the known permission state. The store is
// the source of truth; the queue is a cache rebuilt wholesale on every
// mutation rather than patched incrementally.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/remindd/internal/bus"
	"github.com/basket/remindd/internal/notify"
	"github.com/basket/remindd/internal/otel"
	"github.com/basket/remindd/internal/shared"
	"github.com/basket/remindd/internal/store"
)

// PermissionGate reports the current notification permission state.
// *permission.Monitor satisfies it.
type PermissionGate interface {
	Granted() bool
}

type Engine struct {
	store   *store.Store
	sched   notify.Scheduler
	gate    PermissionGate
	b       *bus.Bus
	logger  *slog.Logger
	metrics *otel.Metrics

	// mu serializes the top-level operations so a resync never interleaves
	// with a concurrent mutation.
	mu          sync.Mutex
	lastPending int64
}

func New(s *store.Store, sched notify.Scheduler, gate PermissionGate, b *bus.Bus, metrics *otel.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		sched:   sched,
		gate:    gate,
		b:       b,
		logger:  logger,
		metrics: metrics,
	}
}

// AddReminder persists a new reminder and rebuilds the notification queue
// from the full pending set. The returned reminder carries its assigned id.
func (e *Engine) AddReminder(ctx context.Context, title string, at time.Time) (store.Reminder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	r, err := e.store.Create(ctx, title, at)
	if err != nil {
		return store.Reminder{}, err
	}
	e.logger.Info("reminder added",
		"trace_id", shared.TraceID(ctx), "reminder_id", r.ID, "push_time", r.PushTime)

	if err := e.resyncLocked(ctx); err != nil {
		return store.Reminder{}, err
	}
	e.b.Publish(bus.TopicRemindersChanged, bus.RemindersChangedEvent{Reason: "add"})
	return r, nil
}

// DeleteReminder removes the row and rebuilds the queue so no orphaned
// notification survives the deletion. Deleting an unknown id is a no-op.
func (e *Engine) DeleteReminder(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.Info("reminder deleted", "trace_id", shared.TraceID(ctx), "reminder_id", id)

	if err := e.resyncLocked(ctx); err != nil {
		return err
	}
	e.b.Publish(bus.TopicRemindersChanged, bus.RemindersChangedEvent{Reason: "delete"})
	return nil
}

// OnNotificationDelivered records that the notification for id reached the
// user. The row is marked in place; no resync is needed since the fired entry
// already left the queue.
func (e *Engine) OnNotificationDelivered(ctx context.Context, d notify.Delivery) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.MarkDelivered(ctx, d.ID); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Deliveries.Add(ctx, 1)
	}
	e.logger.Info("reminder delivered", "reminder_id", d.ID, "fired_at", d.FiredAt)

	e.b.Publish(bus.TopicReminderDelivered, bus.ReminderDeliveredEvent{
		ID: d.ID, Title: d.Title, FiredAt: d.FiredAt,
	})
	e.b.Publish(bus.TopicRemindersChanged, bus.RemindersChangedEvent{Reason: "delivered"})
	return nil
}

// Refresh returns a snapshot of every persisted reminder.
func (e *Engine) Refresh(ctx context.Context) ([]store.Reminder, error) {
	return e.store.ListAll(ctx)
}

// Resync rebuilds the notification queue from the store.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resyncLocked(ctx)
}

// resyncLocked is the convergence step: cancel everything, then schedule one
// entry per pending row. Scheduling errors degrade to log lines so a single
// bad row cannot wedge the rest of the queue; store errors surface.
func (e *Engine) resyncLocked(ctx context.Context) error {
	start := time.Now()

	if !e.gate.Granted() {
		e.logger.Info("resync skipped, notification permission denied")
		return nil
	}

	if err := e.sched.CancelAll(ctx); err != nil {
		e.logger.Warn("cancel all notifications failed", "error", err)
	}

	all, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}

	var scheduled, pending int64
	for _, r := range all {
		if !r.Pending() {
			continue
		}
		pending++
		if err := e.sched.ScheduleAt(ctx, r.ID, r.Title, r.PushTime); err != nil {
			if e.metrics != nil {
				e.metrics.SchedulingErrors.Add(ctx, 1)
			}
			e.logger.Warn("schedule notification failed",
				"reminder_id", r.ID, "push_time", r.PushTime, "error", err)
			continue
		}
		scheduled++
	}

	if e.metrics != nil {
		e.metrics.ResyncScheduled.Add(ctx, scheduled)
		e.metrics.ResyncDuration.Record(ctx, time.Since(start).Seconds())
		e.metrics.PendingReminders.Add(ctx, pending-e.lastPending)
	}
	e.lastPending = pending

	e.logger.Info("resync complete",
		"total", len(all), "scheduled", scheduled, "duration", time.Since(start))
	return nil
}

// Run consumes delivery events from the scheduler and permission transitions
// from the bus until ctx is cancelled. A denied-to-granted transition triggers
// a full resync so reminders created while denied finally reach the queue.
func (e *Engine) Run(ctx context.Context) {
	sub := e.b.Subscribe(bus.TopicPermissionChanged)
	defer e.b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-e.sched.Deliveries():
			if !ok {
				return
			}
			if err := e.OnNotificationDelivered(ctx, d); err != nil {
				e.logger.Error("record delivery failed", "reminder_id", d.ID, "error", err)
			}

		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			pc, isPC := ev.Payload.(bus.PermissionChangedEvent)
			if !isPC {
				continue
			}
			if e.metrics != nil {
				e.metrics.PermissionRechecks.Add(ctx, 1)
			}
			if pc.Granted {
				if err := e.Resync(ctx); err != nil {
					e.logger.Error("resync after permission grant failed", "error", err)
				}
			} else {
				e.logger.Info("notification permission revoked, queue left to expire")
			}
		}
	}
}
