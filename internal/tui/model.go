package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"quotabar/internal/events"
	"quotabar/internal/quota"
)

// ViewState tracks what the status view is showing.
type ViewState int

const (
	ViewConnecting ViewState = iota
	ViewActive
	ViewWaiting
)

// Messages sent into the program by the discovery and polling engine.
type (
	// SnapshotMsg carries a fresh quota snapshot.
	SnapshotMsg quota.Snapshot

	// FetchErrorMsg reports a transient fetch failure; the last snapshot
	// stays on screen.
	FetchErrorMsg struct{ Err string }

	// AttemptMsg reports a discovery attempt in progress.
	AttemptMsg struct {
		Attempt int
		Phase   string
	}

	// ConnectedMsg reports a resolved connection.
	ConnectedMsg struct{ Port int }

	// WaitingMsg reports that the retry budget is exhausted and only a
	// manual reconnect will resume discovery.
	WaitingMsg struct{}
)

// Refresher triggers an immediate quota fetch.
type Refresher interface {
	Refresh()
}

// Reconnector restarts connection discovery from scratch.
type Reconnector interface {
	Reconnect()
}

// EventProvider feeds the debug panel.
type EventProvider interface {
	Recent(limit int) []events.PollEvent
}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	attempt int
	phase   string
	port    int

	snapshot *quota.Snapshot
	fetchErr string

	showDebug bool
	bar       progress.Model

	refresher   Refresher
	reconnector Reconnector
	events      EventProvider
	onShutdown  func()
}

func NewModel(opts ...ModelOption) Model {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30

	m := Model{
		view:  ViewConnecting,
		keys:  DefaultKeyMap(),
		phase: "fast",
		bar:   bar,
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

type ModelOption func(*Model)

func WithRefresher(r Refresher) ModelOption {
	return func(m *Model) { m.refresher = r }
}

func WithReconnector(r Reconnector) ModelOption {
	return func(m *Model) { m.reconnector = r }
}

func WithEventProvider(e EventProvider) ModelOption {
	return func(m *Model) { m.events = e }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - 40
		if w < 10 {
			w = 10
		}
		if w > 40 {
			w = 40
		}
		m.bar.Width = w
		return m, nil

	case SnapshotMsg:
		snap := quota.Snapshot(msg)
		m.snapshot = &snap
		m.fetchErr = ""
		m.view = ViewActive
		return m, nil

	case FetchErrorMsg:
		m.fetchErr = msg.Err
		return m, nil

	case AttemptMsg:
		m.view = ViewConnecting
		m.attempt = msg.Attempt
		m.phase = msg.Phase
		return m, nil

	case ConnectedMsg:
		m.port = msg.Port
		m.view = ViewActive
		return m, nil

	case WaitingMsg:
		m.view = ViewWaiting
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		if m.refresher != nil && m.view == ViewActive {
			m.refresher.Refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		if m.reconnector != nil {
			m.reconnector.Reconnect()
			m.view = ViewConnecting
			m.attempt = 0
			m.phase = "fast"
			m.snapshot = nil
			m.fetchErr = ""
		}
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.showDebug = !m.showDebug
		return m, nil
	}

	return m, nil
}

// lastUpdated formats the snapshot age for the footer.
func (m Model) lastUpdated(now time.Time) string {
	if m.snapshot == nil {
		return ""
	}
	age := now.Sub(m.snapshot.Timestamp).Round(time.Second)
	if age < time.Second {
		return "just now"
	}
	return age.String() + " ago"
}
