package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/lyftr/internal/events"
)

// ingestOutcomes is the display order of ingestion results.
var ingestOutcomes = []string{
	"created",
	"duplicate",
	"invalid_signature",
	"validation_error",
	"storage_unavailable",
}

// Tally counts ingestion outcomes seen on the event stream since the watch
// started (including the replayed ring buffer).
type Tally struct {
	counts    map[string]int
	conflicts int
}

func NewTally() Tally {
	return Tally{counts: make(map[string]int)}
}

// Observe records an ingest.* event and returns its decoded payload.
func (t *Tally) Observe(e events.Event) (events.IngestData, bool) {
	if !strings.HasPrefix(e.Type, events.TypePrefixIngest) {
		return events.IngestData{}, false
	}
	var d events.IngestData
	if err := json.Unmarshal(e.Data, &d); err != nil || d.Result == "" {
		d.Result = strings.TrimPrefix(e.Type, events.TypePrefixIngest)
	}
	t.counts[d.Result]++
	if d.Conflict {
		t.conflicts++
	}
	return d, true
}

func (t Tally) Count(result string) int {
	return t.counts[result]
}

func (t Tally) Total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

func (t Tally) Conflicts() int {
	return t.conflicts
}

func renderTally(t Tally, theme Theme) string {
	parts := make([]string, 0, len(ingestOutcomes)+1)
	for _, o := range ingestOutcomes {
		parts = append(parts, theme.resultStyle(o).Render(fmt.Sprintf("%s %d", o, t.Count(o))))
	}
	if t.conflicts > 0 {
		parts = append(parts, theme.StatusFailed.Render(fmt.Sprintf("conflicts %d", t.conflicts)))
	}
	return " " + strings.Join(parts, theme.Dim.Render(" · "))
}
