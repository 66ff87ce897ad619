// Package permission tracks whether the host allows this process to post
// notifications. The state is binary and can change behind our back, so the
// monitor re-probes on every foreground transition and broadcasts changes on
// the bus.
package permission

import (
	"context"
	"log/slog"
	"sync"

	"github.com/basket/remindd/internal/bus"
)

// Prober is the host permission capability.
type Prober interface {
	// Check returns the current grant state without prompting the user.
	Check(ctx context.Context) (bool, error)

	// Request prompts the user and returns the resulting grant state.
	Request(ctx context.Context) (bool, error)
}

// StaticProber always reports a fixed state. It is the headless default: a
// plain daemon has no OS permission dialog, so notifications are treated as
// granted unless configured otherwise.
type StaticProber struct {
	Granted bool
}

func (p StaticProber) Check(context.Context) (bool, error)   { return p.Granted, nil }
func (p StaticProber) Request(context.Context) (bool, error) { return p.Granted, nil }

// Monitor owns the known permission state. It probes once at Start, prompts
// at most once per denied stretch, and re-probes whenever a foreground event
// arrives on the bus. Every observed transition is published as
// bus.TopicPermissionChanged.
type Monitor struct {
	prober Prober
	b      *bus.Bus
	logger *slog.Logger

	mu        sync.Mutex
	granted   bool
	requested bool // a prompt was already shown during the current denied stretch
}

func NewMonitor(prober Prober, b *bus.Bus, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{prober: prober, b: b, logger: logger}
}

// Granted returns the last observed permission state.
func (m *Monitor) Granted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

// Start performs the initial probe, prompting once if the state is denied,
// then watches the bus for foreground events until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.probe(ctx); err != nil {
		return err
	}

	sub := m.b.Subscribe(bus.TopicLifecycleForeground)
	go func() {
		defer m.b.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Ch():
				if !ok {
					return
				}
				if err := m.probe(ctx); err != nil {
					m.logger.Warn("permission re-check failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Recheck probes the current state on demand.
func (m *Monitor) Recheck(ctx context.Context) error {
	return m.probe(ctx)
}

// probe reads the host state, prompting at most once per denied stretch, and
// publishes a transition event when the state changed.
func (m *Monitor) probe(ctx context.Context) error {
	granted, err := m.prober.Check(ctx)
	if err != nil {
		return err
	}

	if !granted {
		m.mu.Lock()
		prompt := !m.requested
		m.requested = true
		m.mu.Unlock()

		if prompt {
			granted, err = m.prober.Request(ctx)
			if err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	changed := granted != m.granted
	m.granted = granted
	if granted {
		// Next denial gets a fresh prompt.
		m.requested = false
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("notification permission changed", "granted", granted)
		m.b.Publish(bus.TopicPermissionChanged, bus.PermissionChangedEvent{Granted: granted})
	}
	return nil
}
