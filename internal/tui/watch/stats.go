package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lyftr/internal/query"
)

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// senderLines lists senders with a proportional bar.
func senderLines(stats query.StatsResult, theme Theme) string {
	if len(stats.MessagesPerSender) == 0 {
		return theme.Dim.Render("  No senders yet")
	}

	top := stats.MessagesPerSender[0].Count
	var b strings.Builder
	for i, s := range stats.MessagesPerSender {
		width := 1
		if top > 0 {
			width = max(1, s.Count*20/top)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %-18s %6d %s", s.From, s.Count, theme.Highlight.Render(strings.Repeat("█", width)))
	}
	return b.String()
}

func renderStats(stats *query.StatsResult, senders viewport.Model, theme Theme, width int) string {
	innerWidth := width - 4

	if stats == nil {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("STORE"),
			theme.Dim.Render("  Loading stats..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	summary := fmt.Sprintf("  Messages: %d  Senders: %d  First: %s  Last: %s",
		stats.TotalMessages,
		stats.SendersCount,
		orDash(stats.FirstMessageTS),
		orDash(stats.LastMessageTS),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("STORE"),
		summary,
		theme.Dim.Render("  Top senders"),
		senders.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
