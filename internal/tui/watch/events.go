package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lyftr/internal/events"
)

const maxEventRows = 50

func newEventTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Time", Width: 8},
			{Title: "Result", Width: 20},
			{Title: "Message", Width: 24},
			{Title: "Note", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// eventRows renders the log newest first.
func eventRows(eventLog []events.Event) []table.Row {
	rows := make([]table.Row, 0, len(eventLog))
	for _, e := range eventLog {
		rows = append(rows, eventRow(e))
	}
	return rows
}

func eventRow(e events.Event) table.Row {
	result := strings.TrimPrefix(e.Type, events.TypePrefixIngest)
	var d events.IngestData
	if err := json.Unmarshal(e.Data, &d); err == nil && d.Result != "" {
		result = d.Result
	}

	var note string
	switch {
	case d.Conflict:
		note = "conflict"
	case d.Dup:
		note = "dup"
	}

	id := d.MessageID
	if id == "" {
		id = "-"
	}

	return table.Row{
		fmt.Sprintf("%d", e.ID),
		e.At.Local().Format("15:04:05"),
		result,
		id,
		note,
	}
}

func renderEventStream(t table.Model, empty bool, theme Theme, width int) string {
	innerWidth := width - 4

	body := t.View()
	if empty {
		body = theme.Dim.Render("  Waiting for webhooks...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("INGESTION"),
		body,
	)
	return theme.Border.Width(innerWidth).Render(content)
}
