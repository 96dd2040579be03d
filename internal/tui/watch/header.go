package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks server readiness from polling.
type HealthState struct {
	Ready            bool
	Checks           map[string]string
	UptimeSeconds    int64
	SecretConfigured bool
	Connected        bool
	LastCheck        time.Time
}

func renderHeader(health HealthState, ticker Ticker, pulse Pulse, connecting spinner.Model, tally Tally, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("READY")
	statusIcon := "✅"
	switch {
	case !health.Connected:
		statusText = connecting.View() + " " + theme.StatusWarn.Render("CONNECTING")
		statusIcon = "🔌"
	case !health.Ready:
		statusText = theme.StatusFailed.Render("NOT READY")
		statusIcon = "⚠️"
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !pulse.LastEvent().IsZero() {
		ago := time.Since(pulse.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" LYFTR WATCH %s", tickerStr)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  %s",
		statusIcon, statusText, uptime, renderChecks(health.Checks, theme))

	activityLine := fmt.Sprintf(" Last event: %s %s  Seen: %d",
		lastEventStr, pulse.Render(theme), tally.Total())

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
		renderTally(tally, theme),
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func renderChecks(checks map[string]string, theme Theme) string {
	names := make([]string, 0, len(checks))
	for k := range checks {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		style := theme.StatusOK
		if checks[k] != "ok" {
			style = theme.StatusFailed
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, style.Render(checks[k])))
	}
	return strings.Join(parts, "  ")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
