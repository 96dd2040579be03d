package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/lyftr/internal/store"
)

const (
	DefaultLimit = 50
	MinLimit     = 1
	MaxLimit     = 100
)

// ErrInvalidParams matches every parameter validation failure.
var ErrInvalidParams = errors.New("invalid query parameters")

// ValidationError names the offending parameter.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidParams }

// Reader is the read side of the message store.
type Reader interface {
	Query(ctx context.Context, f store.Filter, limit, offset int) (store.Page, error)
	Aggregate(ctx context.Context) (store.Aggregate, error)
}

// Params are list parameters as received. Empty strings mean "no filter".
type Params struct {
	From   string
	Since  string
	Q      string
	Limit  int
	Offset int
}

// PageResult is the paginated list response.
type PageResult struct {
	Data   []store.Message `json:"data"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Service answers message list queries.
type Service struct {
	reader Reader
}

func NewService(r Reader) *Service {
	return &Service{reader: r}
}

// ListMessages validates p and returns the requested page. Invalid
// parameters are rejected before storage is touched.
func (s *Service) ListMessages(ctx context.Context, p Params) (PageResult, error) {
	filter, err := p.filter()
	if err != nil {
		return PageResult{}, err
	}

	page, err := s.reader.Query(ctx, filter, p.Limit, p.Offset)
	if err != nil {
		return PageResult{}, fmt.Errorf("list messages: %w", err)
	}

	data := page.Messages
	if data == nil {
		data = []store.Message{}
	}
	return PageResult{Data: data, Total: page.Total, Limit: p.Limit, Offset: p.Offset}, nil
}

func (p Params) filter() (store.Filter, error) {
	if p.Limit < MinLimit || p.Limit > MaxLimit {
		return store.Filter{}, &ValidationError{Param: "limit", Reason: fmt.Sprintf("must be between %d and %d", MinLimit, MaxLimit)}
	}
	if p.Offset < 0 {
		return store.Filter{}, &ValidationError{Param: "offset", Reason: "must be >= 0"}
	}

	f := store.Filter{From: p.From, TextContains: p.Q}
	if since := strings.TrimSpace(p.Since); since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			return store.Filter{}, &ValidationError{Param: "since", Reason: "must be an RFC 3339 timestamp"}
		}
		if t.Before(store.MinTimestamp) || t.After(store.MaxTimestamp) {
			return store.Filter{}, &ValidationError{Param: "since", Reason: fmt.Sprintf("must be between %d and %d", store.MinTimestamp.Year(), store.MaxTimestamp.Year())}
		}
		f.Since = &t
	}
	return f, nil
}
