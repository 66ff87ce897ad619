package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/basket/remindd/internal/bus"
)

type scriptedProber struct {
	mu       sync.Mutex
	states   []bool // consumed by Check, last value repeats
	requests int
	grantOn  bool // what Request returns
}

func (p *scriptedProber) Check(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return false, nil
	}
	s := p.states[0]
	if len(p.states) > 1 {
		p.states = p.states[1:]
	}
	return s, nil
}

func (p *scriptedProber) Request(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return p.grantOn, nil
}

func (p *scriptedProber) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMonitor_InitialGrant(t *testing.T) {
	b := bus.New()
	m := NewMonitor(&scriptedProber{states: []bool{true}}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Granted() {
		t.Fatal("expected granted state after initial probe")
	}
}

func TestMonitor_PromptsOncePerDeniedStretch(t *testing.T) {
	p := &scriptedProber{states: []bool{false}, grantOn: false}
	b := bus.New()
	m := NewMonitor(p, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Granted() {
		t.Fatal("expected denied state")
	}
	if p.requestCount() != 1 {
		t.Fatalf("requests = %d, want exactly 1", p.requestCount())
	}

	// Foreground re-checks never prompt again while still denied.
	if err := m.Recheck(ctx); err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if p.requestCount() != 1 {
		t.Fatalf("recheck must not prompt, requests = %d", p.requestCount())
	}
}

func TestMonitor_ForegroundRecheckPublishesTransition(t *testing.T) {
	p := &scriptedProber{states: []bool{false, true}}
	b := bus.New()
	m := NewMonitor(p, b, nil)

	sub := b.Subscribe(bus.TopicPermissionChanged)
	defer b.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Granted() {
		t.Fatal("expected denied before foreground event")
	}

	b.Publish(bus.TopicLifecycleForeground, bus.ForegroundEvent{At: time.Now()})

	waitFor(t, 2*time.Second, m.Granted)

	select {
	case ev := <-sub.Ch():
		pc, ok := ev.Payload.(bus.PermissionChangedEvent)
		if !ok || !pc.Granted {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no permission.changed event published")
	}
}

func TestMonitor_NoEventWhenStateUnchanged(t *testing.T) {
	b := bus.New()
	m := NewMonitor(&scriptedProber{states: []bool{true}}, b, nil)

	sub := b.Subscribe(bus.TopicPermissionChanged)
	defer b.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Initial probe goes false -> true, which is a transition.
	select {
	case <-sub.Ch():
	case <-time.After(time.Second):
		t.Fatal("expected transition event from initial probe")
	}

	if err := m.Recheck(ctx); err != nil {
		t.Fatalf("recheck: %v", err)
	}
	select {
	case ev := <-sub.Ch():
		t.Fatalf("steady state must not publish, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
