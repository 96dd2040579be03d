package store

import (
	"math"
	"time"
)

// MinTimestamp and MaxTimestamp bound the instants that fit in ts_ns.
var (
	MinTimestamp = time.Unix(0, math.MinInt64).UTC()
	MaxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// Message is the single persisted entity. Fields are immutable once stored.
type Message struct {
	ID   string `json:"message_id"`
	From string `json:"from"`
	To   string `json:"to"`
	// TS is the timestamp text as received; Timestamp is its parsed instant
	// and drives ordering.
	TS        string    `json:"ts"`
	Timestamp time.Time `json:"-"`
	Text      string    `json:"text"`
	BodyHash  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertResult reports whether Insert wrote a new row.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

func (r InsertResult) String() string {
	if r == AlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// Filter narrows Query. Zero values mean "no filter".
type Filter struct {
	From         string
	Since        *time.Time
	TextContains string
}

// Page is one ordered slice of the filtered result plus the filtered total.
type Page struct {
	Messages []Message
	Total    int
}

// SenderCount is one row of the per-sender breakdown.
type SenderCount struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

// Aggregate summarises the whole corpus.
type Aggregate struct {
	TotalMessages   int
	DistinctSenders int
	// PerSender is ordered by count descending, then sender ascending.
	PerSender []SenderCount
	// Earliest and Latest hold the ts text of the first and last messages in
	// canonical order; nil when the store is empty.
	Earliest *string
	Latest   *string
}
