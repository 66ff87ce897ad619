// Package notify is a thin capability over the host notification subsystem:
// schedule a one-shot notification at an absolute time, cancel everything,
// and surface an inbound stream of delivery events.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Presentation is the process-wide policy for how a fired notification is
// shown. It is threaded explicitly into scheduler and presenter constructors
// rather than installed as a global handler.
type Presentation struct {
	ShowAlert bool
	PlaySound bool
	ShowBadge bool
}

// DefaultPresentation matches the original application policy:
// always show an alert, no sound, no badge.
func DefaultPresentation() Presentation {
	return Presentation{ShowAlert: true}
}

// Delivery is emitted when a scheduled notification fires. ID is the
// correlation payload the notification was scheduled with, returned verbatim.
type Delivery struct {
	ID      int64
	Title   string
	FiredAt time.Time
}

// Scheduler is the OS notification queue capability. The engine treats the
// queue as an opaque cache that is always rebuilt from the store, so the
// contract is deliberately small: no per-id cancel, no listing.
type Scheduler interface {
	// ScheduleAt registers a one-shot notification at the given time carrying
	// id as correlation payload. Scheduling the same id again replaces the
	// previous entry.
	ScheduleAt(ctx context.Context, id int64, title string, at time.Time) error

	// CancelAll clears every pending notification owned by this process.
	CancelAll(ctx context.Context) error

	// Deliveries returns the stream of fired notifications. It must be
	// consumed for the lifetime of the application.
	Deliveries() <-chan Delivery
}

// Presenter shows a fired notification to the user.
type Presenter interface {
	Present(ctx context.Context, d Delivery) error
}

// LogPresenter writes fired notifications to the log. It is the headless
// default when no channel presenter is configured.
type LogPresenter struct {
	logger *slog.Logger
	pres   Presentation
}

func NewLogPresenter(pres Presentation, logger *slog.Logger) *LogPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPresenter{logger: logger, pres: pres}
}

func (p *LogPresenter) Present(_ context.Context, d Delivery) error {
	if !p.pres.ShowAlert {
		p.logger.Debug("notification suppressed by presentation policy", "reminder_id", d.ID)
		return nil
	}
	p.logger.Info("reminder", "reminder_id", d.ID, "title", d.Title, "fired_at", d.FiredAt)
	return nil
}
