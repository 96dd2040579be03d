package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lyftr/internal/api"
	"github.com/mattjoyce/lyftr/internal/events"
	"github.com/mattjoyce/lyftr/internal/query"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Ready            bool
	Checks           map[string]string
	UptimeSeconds    int64
	SecretConfigured bool
}

type statsMsg query.StatsResult

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// client talks to a running lyftr server. lastID survives reconnects so the
// server can replay what was missed.
type client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	lastID  atomic.Int64
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
		stream:  &http.Client{},
	}
}

// --- Commands ---

// subscribe connects to /events and feeds events into ch until the
// connection drops.
func (c *client) subscribe(ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		if id := c.lastID.Load(); id > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(id, 10))
		}

		resp, err := c.stream.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()

		_ = readSSE(resp.Body, func(ev events.Event) {
			c.lastID.Store(ev.ID)
			ch <- ev
		})
		return sseDisconnectedMsg{}
	}
}

// readSSE parses an event stream, calling emit once per complete event.
// Comment lines (keep-alives) are ignored.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	var cur events.Event
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				cur.Data = json.RawMessage(data.String())
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				emit(cur)
			}
			cur = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth combines GET / and GET /health/ready. A 503 from readiness
// still carries a body worth showing.
func (c *client) fetchHealth() tea.Msg {
	var root api.RootResponse
	if _, err := c.getJSON("/", &root); err != nil {
		return errMsg(err)
	}

	var ready api.ReadyResponse
	code, err := c.getJSON("/health/ready", &ready)
	if err != nil {
		return errMsg(err)
	}

	return healthMsg{
		Ready:            code == http.StatusOK,
		Checks:           ready.Checks,
		UptimeSeconds:    root.UptimeSeconds,
		SecretConfigured: root.SecretConfigured,
	}
}

func (c *client) fetchStats() tea.Msg {
	var s query.StatsResult
	code, err := c.getJSON("/stats", &s)
	if err != nil {
		return errMsg(err)
	}
	if code != http.StatusOK {
		return errMsg(fmt.Errorf("GET /stats: HTTP %d", code))
	}
	return statsMsg(s)
}

func (c *client) getJSON(path string, v any) (int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return resp.StatusCode, nil
}
