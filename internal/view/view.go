// Package view is a terminal front end for the reminder list. It never
// mutates state on its own: every key press goes through the engine, and the
// displayed list refreshes when change events arrive on the bus.
package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/basket/remindd/internal/bus"
	"github.com/basket/remindd/internal/store"
)

// Controller is the slice of the engine the view needs.
type Controller interface {
	AddReminder(ctx context.Context, title string, at time.Time) (store.Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error
	Refresh(ctx context.Context) ([]store.Reminder, error)
}

// PermissionState reports whether notifications are currently allowed.
type PermissionState func() bool

type mode int

const (
	modeList mode = iota
	modeTitle
	modeTime
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	deliveredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	bannerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type refreshMsg []store.Reminder
type busMsg bus.Event
type errMsg struct{ err error }

type model struct {
	ctx     context.Context
	ctrl    Controller
	granted PermissionState
	sub     *bus.Subscription

	reminders []store.Reminder
	cursor    int
	mode      mode
	title     string
	when      string
	status    string
}

func newModel(ctx context.Context, ctrl Controller, granted PermissionState, sub *bus.Subscription) model {
	return model{ctx: ctx, ctrl: ctrl, granted: granted, sub: sub}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.waitForBus())
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		all, err := m.ctrl.Refresh(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return refreshMsg(all)
	}
}

func (m model) waitForBus() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.sub.Ch()
		if !ok {
			return nil
		}
		return busMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.reminders = msg
		if m.cursor >= len(m.reminders) {
			m.cursor = max(0, len(m.reminders)-1)
		}
		return m, nil

	case busMsg:
		// Any reminder or permission event invalidates the displayed list.
		return m, tea.Batch(m.refreshCmd(), m.waitForBus())

	case errMsg:
		m.status = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeList {
			return m.updateEntry(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.reminders)-1 {
			m.cursor++
		}
	case "a":
		m.mode = modeTitle
		m.title = ""
		m.when = ""
		m.status = ""
	case "d":
		if m.cursor < len(m.reminders) {
			id := m.reminders[m.cursor].ID
			return m, func() tea.Msg {
				if err := m.ctrl.DeleteReminder(m.ctx, id); err != nil {
					return errMsg{err}
				}
				return nil
			}
		}
	case "r":
		return m, m.refreshCmd()
	}
	return m, nil
}

func (m model) updateEntry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	field := &m.title
	if m.mode == modeTime {
		field = &m.when
	}

	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.status = ""
		return m, nil
	case "enter":
		if m.mode == modeTitle {
			if strings.TrimSpace(m.title) == "" {
				m.status = "title must not be empty"
				return m, nil
			}
			m.mode = modeTime
			return m, nil
		}
		at, err := ParseWhen(m.when, time.Now())
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		title := m.title
		m.mode = modeList
		m.status = ""
		return m, func() tea.Msg {
			if _, err := m.ctrl.AddReminder(m.ctx, title, at); err != nil {
				return errMsg{err}
			}
			return nil
		}
	case "backspace":
		if len(*field) > 0 {
			*field = (*field)[:len(*field)-1]
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		*field += string(msg.Runes)
	case tea.KeySpace:
		*field += " "
	}
	return m, nil
}

func (m model) View() string {
	var out strings.Builder
	out.WriteString(headerStyle.Render("remindd") + "\n\n")

	if !m.granted() {
		out.WriteString(bannerStyle.Render("notifications disabled: permission denied") + "\n\n")
	}

	if len(m.reminders) == 0 {
		out.WriteString(dimStyle.Render("(no reminders)") + "\n")
	}
	for i, r := range m.reminders {
		prefix := "  "
		if i == m.cursor && m.mode == modeList {
			prefix = "> "
		}
		line := fmt.Sprintf("%s%s  %s", prefix, r.PushTime.Local().Format("2006-01-02 15:04"), r.Title)
		if r.Delivered {
			line = deliveredStyle.Render(line)
		}
		out.WriteString(line + "\n")
	}

	switch m.mode {
	case modeTitle:
		out.WriteString("\n" + promptStyle.Render("title: ") + m.title + "█\n")
	case modeTime:
		out.WriteString("\n" + promptStyle.Render("when (2006-01-02 15:04 or +10m): ") + m.when + "█\n")
	default:
		out.WriteString("\n" + dimStyle.Render("a add · d delete · r refresh · q quit") + "\n")
	}

	if m.status != "" {
		out.WriteString(errorStyle.Render(m.status) + "\n")
	}
	return out.String()
}

// ParseWhen accepts an absolute local timestamp ("2006-01-02 15:04") or a
// relative offset ("+10m", "+2h30m") from now.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time must not be empty")
	}
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("bad offset %q: %w", s, err)
		}
		return now.Add(d), nil
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q, want 2006-01-02 15:04", s)
	}
	return at, nil
}

// Run starts the terminal UI and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, ctrl Controller, granted PermissionState, b *bus.Bus) error {
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	m := newModel(ctx, ctrl, granted, sub)
	p := tea.NewProgram(m)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}
