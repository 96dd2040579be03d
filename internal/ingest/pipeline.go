package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/lyftr/internal/store"
	"github.com/mattjoyce/lyftr/internal/webhook"
)

// Pipeline verifies, validates and persists webhook messages.
type Pipeline struct {
	secret   string
	store    Store
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline. An empty secret makes every Ingest call fail
// signature verification.
func New(secret string, st Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		secret:   secret,
		store:    st,
		recorder: Recorders(nil),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest runs one message through signature check, validation, duplicate
// check and insert, in that order. Signature and validation failures come
// back as a Result; the error is non-nil only when storage failed, and then
// wraps store.ErrUnavailable.
func (p *Pipeline) Ingest(ctx context.Context, body []byte, signature string) (res Result, err error) {
	defer func() { p.record(ctx, res, err) }()

	if signature == "" || !webhook.Verify(p.secret, body, signature) {
		p.logger.Warn("webhook signature verification failed", "signature_present", signature != "")
		return Result{Outcome: InvalidSignature}, nil
	}

	msg, verr := p.parse(body)
	if verr != nil {
		p.logger.Info("webhook payload rejected", "message_id", msg.ID, "reason", verr.Error())
		return Result{Outcome: ValidationError, MessageID: msg.ID, Reason: verr.Error()}, nil
	}

	exists, err := p.store.Exists(ctx, msg.ID)
	if err != nil {
		return Result{MessageID: msg.ID}, fmt.Errorf("check message %s: %w", msg.ID, err)
	}
	if exists {
		return p.duplicate(ctx, msg), nil
	}

	inserted, err := p.store.Insert(ctx, msg)
	if err != nil {
		return Result{MessageID: msg.ID}, fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	if inserted == store.AlreadyExists {
		// Lost a race with a concurrent insert of the same id.
		return p.duplicate(ctx, msg), nil
	}

	p.logger.Debug("message stored", "message_id", msg.ID)
	return Result{Outcome: Created, MessageID: msg.ID}, nil
}

func (p *Pipeline) parse(body []byte) (store.Message, error) {
	pl, ts, err := parsePayload(body)
	msg := store.Message{ID: pl.MessageID}
	if err != nil {
		return msg, err
	}
	sum := blake3.Sum256(body)
	msg.From = pl.From
	msg.To = pl.To
	msg.TS = pl.TS
	msg.Timestamp = ts.UTC()
	msg.Text = pl.Text
	msg.BodyHash = hex.EncodeToString(sum[:])
	msg.CreatedAt = p.now().UTC()
	return msg, nil
}

// duplicate classifies a repeat id and flags it when the stored body hash
// differs from this one. Hash lookup failures do not change the outcome.
func (p *Pipeline) duplicate(ctx context.Context, msg store.Message) Result {
	res := Result{Outcome: Duplicate, MessageID: msg.ID}

	stored, err := p.store.Fingerprint(ctx, msg.ID)
	switch {
	case err != nil && !errors.Is(err, store.ErrNotFound):
		p.logger.Warn("duplicate fingerprint lookup failed", "message_id", msg.ID, "error", err)
	case stored != "" && stored != msg.BodyHash:
		res.Conflict = true
		p.logger.Warn("duplicate message_id with different payload", "message_id", msg.ID)
	}
	return res
}

func (p *Pipeline) record(ctx context.Context, res Result, err error) {
	ev := Event{
		MessageID: res.MessageID,
		Outcome:   res.Outcome,
		Duplicate: res.Outcome == Duplicate,
		Conflict:  res.Conflict,
		At:        p.now().UTC(),
	}
	if err != nil {
		ev.Outcome = Unavailable
		p.logger.Error("message ingestion failed", "message_id", res.MessageID, "error", err)
	}
	p.recorder.RecordIngest(ctx, ev)
}
