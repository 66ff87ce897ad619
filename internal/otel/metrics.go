package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all remindd metrics instruments.
type Metrics struct {
	ResyncDuration     metric.Float64Histogram
	ResyncScheduled    metric.Int64Counter
	Deliveries         metric.Int64Counter
	SchedulingErrors   metric.Int64Counter
	PermissionRechecks metric.Int64Counter
	PendingReminders   metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ResyncDuration, err = meter.Float64Histogram("remindd.resync.duration",
		metric.WithDescription("Full queue resync duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ResyncScheduled, err = meter.Int64Counter("remindd.resync.scheduled",
		metric.WithDescription("Notifications scheduled across resyncs"),
	)
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("remindd.deliveries",
		metric.WithDescription("Notification delivery events processed"),
	)
	if err != nil {
		return nil, err
	}

	m.SchedulingErrors, err = meter.Int64Counter("remindd.scheduling.errors",
		metric.WithDescription("Failed scheduler calls during resync"),
	)
	if err != nil {
		return nil, err
	}

	m.PermissionRechecks, err = meter.Int64Counter("remindd.permission.rechecks",
		metric.WithDescription("Permission re-checks triggered by lifecycle events"),
	)
	if err != nil {
		return nil, err
	}

	m.PendingReminders, err = meter.Int64UpDownCounter("remindd.reminders.pending",
		metric.WithDescription("Reminders persisted and not yet delivered"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
