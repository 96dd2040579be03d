package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lyftr/internal/ingest/mocks"
	"github.com/mattjoyce/lyftr/internal/storage"
	"github.com/mattjoyce/lyftr/internal/store"
	"github.com/mattjoyce/lyftr/internal/webhook"
)

const testSecret = "testsecret"

// NewTestSlogger creates a logger writing JSON into a buffer.
func NewTestSlogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) RecordIngest(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func body(id string) []byte {
	return []byte(fmt.Sprintf(`{"message_id":%q,"from":"+919876543210","to":"+14155550100","ts":"2025-01-15T10:00:00Z","text":"Hello"}`, id))
}

func newMockPipeline(t *testing.T) (*Pipeline, *mocks.MockStore, *eventLog, *bytes.Buffer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	events := &eventLog{}
	logger, buf := NewTestSlogger()
	return New(testSecret, st, WithRecorder(events), WithLogger(logger)), st, events, buf
}

func TestIngestInvalidSignatureTouchesNothing(t *testing.T) {
	p, _, events, _ := newMockPipeline(t)
	ctx := context.Background()
	b := body("m1")

	for name, sig := range map[string]string{
		"missing":      "",
		"other secret": webhook.Sign("othersecret", b),
		"garbage":      "zz",
	} {
		t.Run(name, func(t *testing.T) {
			res, err := p.Ingest(ctx, b, sig)
			require.NoError(t, err)
			assert.Equal(t, InvalidSignature, res.Outcome)
			assert.Empty(t, res.MessageID)
		})
	}

	got := events.all()
	require.Len(t, got, 3)
	for _, ev := range got {
		assert.Equal(t, InvalidSignature, ev.Outcome)
	}
}

func TestIngestEmptySecretRejectsEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := New("", mocks.NewMockStore(ctrl))

	b := body("m1")
	res, err := p.Ingest(context.Background(), b, webhook.Sign("", b))
	require.NoError(t, err)
	assert.Equal(t, InvalidSignature, res.Outcome)
}

func TestIngestValidationErrors(t *testing.T) {
	p, _, events, _ := newMockPipeline(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "empty body", body: ``, wantMsg: "empty body"},
		{name: "not json", body: `hello`, wantMsg: "not valid JSON"},
		{name: "array", body: `[]`},
		{name: "missing ts", body: `{"message_id":"m1","from":"+1","to":"+2","text":""}`, wantMsg: "ts"},
		{name: "missing text", body: `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z"}`, wantMsg: "text"},
		{name: "empty message_id", body: `{"message_id":"","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":""}`},
		{name: "empty from", body: `{"message_id":"m1","from":"","to":"+2","ts":"2025-01-15T10:00:00Z","text":""}`},
		{name: "numeric to", body: `{"message_id":"m1","from":"+1","to":2,"ts":"2025-01-15T10:00:00Z","text":""}`},
		{name: "null text", body: `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":null}`},
		{name: "unparseable ts", body: `{"message_id":"m1","from":"+1","to":"+2","ts":"yesterday","text":""}`, wantMsg: "RFC 3339"},
		{name: "ts without zone", body: `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00","text":""}`, wantMsg: "RFC 3339"},
		{name: "ts out of range", body: `{"message_id":"m1","from":"+1","to":"+2","ts":"9999-01-01T00:00:00Z","text":""}`, wantMsg: "out of range"},
		{name: "text too long", body: fmt.Sprintf(`{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":%q}`, strings.Repeat("a", MaxTextLength+1))},
		{name: "invalid utf8", body: "{\"message_id\":\"m1\",\"from\":\"+1\",\"to\":\"+2\",\"ts\":\"2025-01-15T10:00:00Z\",\"text\":\"\xff\"}", wantMsg: "UTF-8"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := []byte(tc.body)
			res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
			require.NoError(t, err)
			assert.Equal(t, ValidationError, res.Outcome)
			assert.NotEmpty(t, res.Reason)
			if tc.wantMsg != "" {
				assert.Contains(t, res.Reason, tc.wantMsg)
			}
		})
	}
	assert.Len(t, events.all(), len(cases))
}

func TestIngestAcceptsEdgePayloads(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"empty text":          `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":""}`,
		"max text multibyte":  fmt.Sprintf(`{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":%q}`, strings.Repeat("é", MaxTextLength)),
		"fractional offset":   `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00.123456+05:30","text":"x"}`,
		"extra fields ignore": `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":"x","channel":"sms"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			p, st, _, _ := newMockPipeline(t)
			st.EXPECT().Exists(ctx, "m1").Return(false, nil)
			st.EXPECT().Insert(ctx, gomock.Any()).Return(store.Inserted, nil)

			b := []byte(raw)
			res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
			require.NoError(t, err)
			assert.Equal(t, Created, res.Outcome, res.Reason)
		})
	}
}

func TestIngestCreatedBuildsMessage(t *testing.T) {
	p, st, events, _ := newMockPipeline(t)
	ctx := context.Background()
	fixed := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	b := []byte(`{"message_id":"m1","from":"+91","to":"+14","ts":"2025-01-15T15:30:00+05:30","text":"Hello"}`)
	st.EXPECT().Exists(ctx, "m1").Return(false, nil)
	st.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, m store.Message) (store.InsertResult, error) {
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "+91", m.From)
		assert.Equal(t, "+14", m.To)
		assert.Equal(t, "2025-01-15T15:30:00+05:30", m.TS)
		assert.True(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC).Equal(m.Timestamp))
		assert.Equal(t, "Hello", m.Text)
		assert.Len(t, m.BodyHash, 64)
		assert.Equal(t, fixed, m.CreatedAt)
		return store.Inserted, nil
	})

	res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: Created, MessageID: "m1"}, res)
	assert.Equal(t, []Event{{MessageID: "m1", Outcome: Created, At: fixed}}, events.all())
}

func TestIngestDuplicateFromPrecheck(t *testing.T) {
	p, st, events, _ := newMockPipeline(t)
	ctx := context.Background()
	b := body("m1")

	st.EXPECT().Exists(ctx, "m1").Return(true, nil)
	st.EXPECT().Fingerprint(ctx, "m1").Return("", store.ErrNotFound)

	res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.False(t, res.Conflict)

	got := events.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Duplicate)
}

func TestIngestDuplicateFromInsertRace(t *testing.T) {
	p, st, _, _ := newMockPipeline(t)
	ctx := context.Background()
	b := body("m1")

	gomock.InOrder(
		st.EXPECT().Exists(ctx, "m1").Return(false, nil),
		st.EXPECT().Insert(ctx, gomock.Any()).Return(store.AlreadyExists, nil),
		st.EXPECT().Fingerprint(ctx, "m1").Return("", nil),
	)

	res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
}

func TestIngestDuplicateConflictIsFlagged(t *testing.T) {
	p, st, events, logs := newMockPipeline(t)
	ctx := context.Background()
	b := body("m1")

	st.EXPECT().Exists(ctx, "m1").Return(true, nil)
	st.EXPECT().Fingerprint(ctx, "m1").Return("deadbeef", nil)

	res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.True(t, res.Conflict)
	assert.True(t, events.all()[0].Conflict)
	assert.Contains(t, logs.String(), "different payload")
}

func TestIngestStorageFailure(t *testing.T) {
	ctx := context.Background()
	b := body("m1")
	boom := &store.UnavailableError{Op: "exists", Err: errors.New("disk I/O error")}

	t.Run("exists", func(t *testing.T) {
		p, st, events, _ := newMockPipeline(t)
		st.EXPECT().Exists(ctx, "m1").Return(false, boom)

		_, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrUnavailable)
		got := events.all()
		require.Len(t, got, 1)
		assert.Equal(t, Unavailable, got[0].Outcome)
		assert.Equal(t, "m1", got[0].MessageID)
	})

	t.Run("insert", func(t *testing.T) {
		p, st, events, _ := newMockPipeline(t)
		st.EXPECT().Exists(ctx, "m1").Return(false, nil)
		st.EXPECT().Insert(ctx, gomock.Any()).Return(store.Inserted, boom)

		_, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
		assert.ErrorIs(t, err, store.ErrUnavailable)
		assert.Equal(t, Unavailable, events.all()[0].Outcome)
	})
}

func newSQLitePipeline(t *testing.T, opts ...Option) (*Pipeline, *store.Store) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	st := store.New(db)
	t.Cleanup(func() { _ = st.Close() })
	return New(testSecret, st, opts...), st
}

func TestIngestIsIdempotent(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()
	b := body("m1")
	sig := webhook.Sign(testSecret, b)

	res, err := p.Ingest(ctx, b, sig)
	require.NoError(t, err)
	assert.Equal(t, Created, res.Outcome)

	res, err = p.Ingest(ctx, b, sig)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.False(t, res.Conflict)

	page, err := st.Query(ctx, store.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestIngestIgnoresCaseVariantKeys(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	cases := []struct {
		name string
		id   string
		raw  string
	}{
		{name: "upper message_id", id: "m1", raw: `{"message_id":"m1","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":"Hello","MESSAGE_ID":""}`},
		{name: "title from", id: "m2", raw: `{"message_id":"m2","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":"Hello","From":""}`},
		{name: "upper text", id: "m3", raw: fmt.Sprintf(`{"message_id":"m3","from":"+1","to":"+2","ts":"2025-01-15T10:00:00Z","text":"Hello","TEXT":%q}`, strings.Repeat("a", MaxTextLength+904))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := []byte(tc.raw)
			res, err := p.Ingest(ctx, b, webhook.Sign(testSecret, b))
			require.NoError(t, err)
			assert.Equal(t, Created, res.Outcome, res.Reason)
			assert.Equal(t, tc.id, res.MessageID)
		})
	}

	page, err := st.Query(ctx, store.Filter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	for i, m := range page.Messages {
		assert.Equal(t, cases[i].id, m.ID)
		assert.Equal(t, "+1", m.From)
		assert.Equal(t, "Hello", m.Text)
	}
}

func TestIngestConcurrentSameID(t *testing.T) {
	events := &eventLog{}
	p, st := newSQLitePipeline(t, WithRecorder(events))
	ctx := context.Background()
	b := body("race")
	sig := webhook.Sign(testSecret, b)

	const n = 20
	results := make(chan Outcome, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := p.Ingest(ctx, b, sig)
			if assert.NoError(t, err) {
				results <- res.Outcome
			}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	counts := map[Outcome]int{}
	for o := range results {
		counts[o]++
	}
	assert.Equal(t, 1, counts[Created])
	assert.Equal(t, n-1, counts[Duplicate])
	assert.Len(t, events.all(), n)

	page, err := st.Query(ctx, store.Filter{}, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestIngestClosedStoreFailsSafely(t *testing.T) {
	p, st := newSQLitePipeline(t)
	require.NoError(t, st.Close())

	b := body("m1")
	_, err := p.Ingest(context.Background(), b, webhook.Sign(testSecret, b))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestRecorders(t *testing.T) {
	var a, b []Outcome
	rs := Recorders{
		RecorderFunc(func(_ context.Context, ev Event) { a = append(a, ev.Outcome) }),
		nil,
		RecorderFunc(func(_ context.Context, ev Event) { b = append(b, ev.Outcome) }),
	}
	rs.RecordIngest(context.Background(), Event{Outcome: Created})
	assert.Equal(t, []Outcome{Created}, a)
	assert.Equal(t, []Outcome{Created}, b)
	assert.True(t, Created.Accepted())
	assert.True(t, Duplicate.Accepted())
	assert.False(t, ValidationError.Accepted())
}
