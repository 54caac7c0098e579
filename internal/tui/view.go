package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	modelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	exhaustedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("quotabar"))
	b.WriteString("\n\n")

	switch m.view {
	case ViewConnecting:
		b.WriteString(m.renderConnecting())
	case ViewWaiting:
		b.WriteString(m.renderWaiting())
	case ViewActive:
		b.WriteString(m.renderActive())
	}

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return m.clampHeight(b.String())
}

func (m Model) renderConnecting() string {
	var b strings.Builder
	b.WriteString("Looking for the assistant language server...\n")
	if m.attempt > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("attempt %d (%s)", m.attempt, m.phase)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWaiting() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("No language server found."))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press c to search again."))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderActive() string {
	var b strings.Builder

	if m.fetchErr != "" {
		b.WriteString(errorStyle.Render("fetch failed: " + m.fetchErr))
		b.WriteString("\n\n")
	}

	if m.snapshot == nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Connected on port %d, waiting for quota data...", m.port)))
		b.WriteString("\n")
		return b.String()
	}

	for _, mq := range m.snapshot.Models {
		b.WriteString(modelStyle.Render(mq.Label))
		if mq.Exhausted {
			b.WriteString("  ")
			b.WriteString(exhaustedStyle.Render("EXHAUSTED"))
		}
		b.WriteString("\n")

		if mq.RemainingPercent != nil {
			pct := *mq.RemainingPercent
			b.WriteString(m.bar.ViewAs(pct / 100))
			b.WriteString(fmt.Sprintf(" %5.1f%% left", pct))
		} else {
			b.WriteString(dimStyle.Render("—"))
		}
		if mq.ResetsIn != "" {
			b.WriteString(labelStyle.Render("  resets in " + mq.ResetsIn))
		}
		b.WriteString("\n\n")
	}

	if pc := m.snapshot.PromptCredits; pc != nil {
		b.WriteString(labelStyle.Render("Prompt credits: "))
		b.WriteString(fmt.Sprintf("%d / %d\n", pc.Available, pc.Monthly))
	}

	if updated := m.lastUpdated(time.Now()); updated != "" {
		b.WriteString(dimStyle.Render("updated " + updated))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderDebug() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Recent events"))
	b.WriteString("\n")

	if m.events == nil {
		b.WriteString(dimStyle.Render("(no event source)"))
		b.WriteString("\n")
		return b.String()
	}

	recent := m.events.Recent(10)
	if len(recent) == 0 {
		b.WriteString(dimStyle.Render("(empty)"))
		b.WriteString("\n")
		return b.String()
	}
	for _, e := range recent {
		line := fmt.Sprintf("%s  %-9s %s", e.Timestamp.Format("15:04:05"), e.Kind, e.Detail)
		b.WriteString(dimStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderHelp() string {
	return helpStyle.Render("r refresh • c reconnect • d debug • q quit")
}

// clampHeight trims the rendered output to the terminal height so the
// program never scrolls the alt screen.
func (m Model) clampHeight(s string) string {
	if m.height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= m.height {
		return s
	}
	return strings.Join(lines[:m.height], "\n")
}
