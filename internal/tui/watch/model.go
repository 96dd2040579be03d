package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lyftr/internal/events"
	"github.com/mattjoyce/lyftr/internal/query"
)

const pollInterval = 5 * time.Second

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	client *client

	width  int
	height int

	health   HealthState
	stats    *query.StatsResult
	eventLog []events.Event
	tally    Tally

	ticker     Ticker
	pulse      Pulse
	connecting spinner.Model
	table      table.Model
	senders    viewport.Model
	theme      Theme

	hubEvents chan events.Event
	lastError string
}

// New creates a watch model for the server at apiURL.
func New(apiURL string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		client:     newClient(apiURL),
		eventLog:   make([]events.Event, 0),
		tally:      NewTally(),
		ticker:     NewTicker(),
		connecting: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.StatusWarn)),
		table:      newEventTable(),
		senders:    viewport.New(40, 6),
		theme:      theme,
		hubEvents:  make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.fetchHealth,
		m.client.fetchStats,
		m.connecting.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "pgup", "pgdown":
			m.senders, cmd = m.senders.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		m.table.SetHeight(max(5, m.height/3))
		m.senders.Width = m.width - 6
		m.senders.Height = max(3, m.height/5)

	case tickMsg:
		m.ticker.Tick()
		m.pulse.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case spinner.TickMsg:
		m.connecting, cmd = m.connecting.Update(msg)
		return m, cmd

	case eventMsg:
		e := events.Event(msg)
		if _, ok := m.tally.Observe(e); ok {
			m.eventLog = append([]events.Event{e}, m.eventLog...)
			if len(m.eventLog) > maxEventRows {
				m.eventLog = m.eventLog[:maxEventRows]
			}
			m.table.SetRows(eventRows(m.eventLog))
			m.pulse.OnEvent(time.Now())
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Ready = msg.Ready
		m.health.Checks = msg.Checks
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.SecretConfigured = msg.SecretConfigured
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchHealth() })

	case statsMsg:
		s := query.StatsResult(msg)
		m.stats = &s
		m.senders.SetContent(senderLines(s, m.theme))
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchStats() })

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribe(m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		m.health.Connected = false
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchHealth() })
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to lyftr..."
	}

	parts := []string{
		renderHeader(m.health, m.ticker, m.pulse, m.connecting, m.tally, m.theme, m.width),
		renderStats(m.stats, m.senders, m.theme, m.width),
		renderEventStream(m.table, len(m.eventLog) == 0, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Events • [PgUp/PgDn] Senders"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
