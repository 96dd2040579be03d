package ingest

import (
	"context"
	"time"

	"github.com/mattjoyce/lyftr/internal/store"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/lyftr/internal/ingest Store

// Store is the subset of the message store the pipeline writes through.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, m store.Message) (store.InsertResult, error)
	Fingerprint(ctx context.Context, id string) (string, error)
}

// Event describes one ingestion attempt.
type Event struct {
	MessageID string
	Outcome   Outcome
	Duplicate bool
	Conflict  bool
	At        time.Time
}

// Recorder receives exactly one Event per Ingest call.
type Recorder interface {
	RecordIngest(ctx context.Context, ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event)

func (f RecorderFunc) RecordIngest(ctx context.Context, ev Event) { f(ctx, ev) }

// Recorders fans an event out to each recorder in order.
type Recorders []Recorder

func (rs Recorders) RecordIngest(ctx context.Context, ev Event) {
	for _, r := range rs {
		if r != nil {
			r.RecordIngest(ctx, ev)
		}
	}
}
