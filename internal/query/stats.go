package query

import (
	"context"
	"fmt"

	"github.com/mattjoyce/lyftr/internal/store"
)

// DefaultTopSenders caps messages_per_sender in stats responses.
const DefaultTopSenders = 10

type StatsResult struct {
	TotalMessages     int                 `json:"total_messages"`
	SendersCount      int                 `json:"senders_count"`
	MessagesPerSender []store.SenderCount `json:"messages_per_sender"`
	FirstMessageTS    *string             `json:"first_message_ts"`
	LastMessageTS     *string             `json:"last_message_ts"`
}

// Stats summarises the stored corpus.
type Stats struct {
	reader     Reader
	topSenders int
}

// NewStats returns an aggregator listing at most topSenders senders; zero or
// less lists all of them.
func NewStats(r Reader, topSenders int) *Stats {
	return &Stats{reader: r, topSenders: topSenders}
}

func (s *Stats) GetStats(ctx context.Context) (StatsResult, error) {
	agg, err := s.reader.Aggregate(ctx)
	if err != nil {
		return StatsResult{}, fmt.Errorf("get stats: %w", err)
	}

	per := agg.PerSender
	if per == nil {
		per = []store.SenderCount{}
	}
	if s.topSenders > 0 && len(per) > s.topSenders {
		per = per[:s.topSenders]
	}

	return StatsResult{
		TotalMessages:     agg.TotalMessages,
		SendersCount:      agg.DistinctSenders,
		MessagesPerSender: per,
		FirstMessageTS:    agg.Earliest,
		LastMessageTS:     agg.Latest,
	}, nil
}
