package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"quotabar/internal/events"
	"quotabar/internal/quota"
)

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) Refresh() { f.calls++ }

type fakeReconnector struct{ calls int }

func (f *fakeReconnector) Reconnect() { f.calls++ }

func pctPtr(v float64) *float64 { return &v }

func testSnapshot() quota.Snapshot {
	return quota.Snapshot{
		Timestamp: time.Now(),
		Models: []quota.ModelQuota{
			{ModelID: "fast-1", Label: "Fast", RemainingPercent: pctPtr(42.5), ResetsIn: "2h"},
			{ModelID: "smart-1", Label: "Smart", RemainingPercent: pctPtr(0), Exhausted: true},
			{ModelID: "mystery", Label: "Mystery"},
		},
		PromptCredits: &quota.PromptCredits{Available: 120, Monthly: 500},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUpdate_SnapshotActivatesView(t *testing.T) {
	m := NewModel()

	next, _ := m.Update(SnapshotMsg(testSnapshot()))
	got := next.(Model)

	if got.view != ViewActive {
		t.Fatalf("expected ViewActive, got %v", got.view)
	}
	if got.snapshot == nil {
		t.Fatal("expected snapshot to be stored")
	}
}

func TestUpdate_AttemptKeepsConnecting(t *testing.T) {
	m := NewModel()

	next, _ := m.Update(AttemptMsg{Attempt: 3, Phase: "fast"})
	got := next.(Model)

	if got.view != ViewConnecting {
		t.Fatalf("expected ViewConnecting, got %v", got.view)
	}
	view := got.View()
	if !strings.Contains(view, "attempt 3") {
		t.Errorf("expected attempt number in view, got:\n%s", view)
	}
}

func TestUpdate_WaitingShowsReconnectHint(t *testing.T) {
	m := NewModel()

	next, _ := m.Update(WaitingMsg{})
	got := next.(Model)

	if got.view != ViewWaiting {
		t.Fatalf("expected ViewWaiting, got %v", got.view)
	}
	if view := got.View(); !strings.Contains(view, "Press c") {
		t.Errorf("expected reconnect hint, got:\n%s", view)
	}
}

func TestUpdate_FetchErrorKeepsSnapshot(t *testing.T) {
	m := NewModel()
	next, _ := m.Update(SnapshotMsg(testSnapshot()))
	next, _ = next.(Model).Update(FetchErrorMsg{Err: "connection refused"})
	got := next.(Model)

	if got.snapshot == nil {
		t.Fatal("snapshot should survive a fetch error")
	}
	view := got.View()
	if !strings.Contains(view, "connection refused") {
		t.Errorf("expected error banner, got:\n%s", view)
	}
	if !strings.Contains(view, "Fast") {
		t.Errorf("expected last snapshot still rendered, got:\n%s", view)
	}
}

func TestView_ActiveRendersModels(t *testing.T) {
	m := NewModel()
	next, _ := m.Update(SnapshotMsg(testSnapshot()))
	view := next.(Model).View()

	if !strings.Contains(view, "Fast") || !strings.Contains(view, "Smart") {
		t.Errorf("expected model labels, got:\n%s", view)
	}
	if !strings.Contains(view, "EXHAUSTED") {
		t.Errorf("expected exhausted badge, got:\n%s", view)
	}
	if !strings.Contains(view, "—") {
		t.Errorf("expected placeholder for unknown percentage, got:\n%s", view)
	}
	if !strings.Contains(view, "120 / 500") {
		t.Errorf("expected prompt credits, got:\n%s", view)
	}
}

func TestHandleKey_RefreshOnlyWhenActive(t *testing.T) {
	ref := &fakeRefresher{}
	m := NewModel(WithRefresher(ref))

	next, _ := m.Update(keyMsg("r"))
	if ref.calls != 0 {
		t.Fatalf("refresh should be ignored while connecting, got %d calls", ref.calls)
	}

	next, _ = next.(Model).Update(SnapshotMsg(testSnapshot()))
	next.(Model).Update(keyMsg("r"))
	if ref.calls != 1 {
		t.Fatalf("expected 1 refresh call, got %d", ref.calls)
	}
}

func TestHandleKey_ReconnectResetsState(t *testing.T) {
	rec := &fakeReconnector{}
	m := NewModel(WithReconnector(rec))

	next, _ := m.Update(SnapshotMsg(testSnapshot()))
	next, _ = next.(Model).Update(keyMsg("c"))
	got := next.(Model)

	if rec.calls != 1 {
		t.Fatalf("expected 1 reconnect call, got %d", rec.calls)
	}
	if got.view != ViewConnecting {
		t.Errorf("expected ViewConnecting after reconnect, got %v", got.view)
	}
	if got.snapshot != nil {
		t.Error("snapshot should be cleared on reconnect")
	}
}

func TestHandleKey_QuitRunsShutdownHook(t *testing.T) {
	called := false
	m := NewModel(WithOnShutdown(func() { called = true }))

	next, cmd := m.Update(keyMsg("q"))
	if !called {
		t.Error("expected shutdown hook to run")
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if !next.(Model).quitting {
		t.Error("expected quitting flag set")
	}
}

func TestHandleKey_DebugToggle(t *testing.T) {
	buf := events.NewRingBuffer(5)
	buf.Add(events.PollEvent{Timestamp: time.Now(), Kind: events.KindError, Detail: "probe refused"})
	m := NewModel(WithEventProvider(buf))

	next, _ := m.Update(keyMsg("d"))
	got := next.(Model)
	if !got.showDebug {
		t.Fatal("expected debug panel enabled")
	}
	if view := got.View(); !strings.Contains(view, "probe refused") {
		t.Errorf("expected event detail in debug panel, got:\n%s", view)
	}

	next, _ = got.Update(keyMsg("d"))
	if next.(Model).showDebug {
		t.Error("expected debug panel disabled after second toggle")
	}
}
