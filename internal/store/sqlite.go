package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultOpTimeout bounds a single store call when no option overrides it.
const DefaultOpTimeout = 5 * time.Second

// Store persists messages in SQLite. Writers are serialized through a single
// slot so at most one insert is in flight; readers run concurrently under WAL.
type Store struct {
	db        *sql.DB
	writeSlot chan struct{}
	opTimeout time.Duration
	now       func() time.Time
}

type Option func(*Store)

// WithOpTimeout sets the per-operation deadline. Non-positive values are ignored.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		writeSlot: make(chan struct{}, 1),
		opTimeout: DefaultOpTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Ping runs a trivial query; used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1;").Scan(&one); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM messages WHERE message_id = ?;", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("exists", err)
	}
	return true, nil
}

// Insert writes m unless a row with the same id already exists. The primary
// key decides the winner, so concurrent inserts of one id yield exactly one
// Inserted.
func (s *Store) Insert(ctx context.Context, m Message) (InsertResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	select {
	case s.writeSlot <- struct{}{}:
	case <-ctx.Done():
		return 0, unavailable("insert", ctx.Err())
	}
	defer func() { <-s.writeSlot }()

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages(message_id, from_msisdn, to_msisdn, ts, ts_ns, text, body_hash, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(message_id) DO NOTHING;
`, m.ID, m.From, m.To, m.TS, m.Timestamp.UnixNano(), m.Text, m.BodyHash, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, unavailable("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("insert", err)
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// Fingerprint returns the body hash recorded for id.
func (s *Store) Fingerprint(ctx context.Context, id string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT body_hash FROM messages WHERE message_id = ?;", id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("fingerprint", err)
	}
	return hash, nil
}

// Query returns messages [offset, offset+limit) of the filtered result in
// (ts, message_id) order, plus the filtered total. Both are read in one
// transaction.
func (s *Store) Query(ctx context.Context, f Filter, limit, offset int) (Page, error) {
	if limit < 0 || offset < 0 {
		return Page{}, fmt.Errorf("query messages: negative limit or offset (%d, %d)", limit, offset)
	}

	where, args := f.clause()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Page{}, unavailable("query", err)
	}
	defer func() { _ = tx.Rollback() }()

	var page Page
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where+";", args...).Scan(&page.Total); err != nil {
		return Page{}, unavailable("count messages", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT message_id, from_msisdn, to_msisdn, ts, ts_ns, text, created_at
FROM messages`+where+`
ORDER BY ts_ns ASC, message_id ASC
LIMIT ? OFFSET ?;`, append(args, limit, offset)...)
	if err != nil {
		return Page{}, unavailable("query messages", err)
	}
	defer rows.Close()

	page.Messages = make([]Message, 0, limit)
	for rows.Next() {
		var (
			m          Message
			tsNS       int64
			createdAtS string
		)
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.TS, &tsNS, &m.Text, &createdAtS); err != nil {
			return Page{}, unavailable("scan message", err)
		}
		m.Timestamp = time.Unix(0, tsNS).UTC()
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtS)
		if err != nil {
			return Page{}, unavailable("scan message", fmt.Errorf("created_at of %q: %w", m.ID, err))
		}
		m.CreatedAt = createdAt
		page.Messages = append(page.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Page{}, unavailable("query messages", err)
	}
	return page, nil
}

func (f Filter) clause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != "" {
		conds = append(conds, "from_msisdn = ?")
		args = append(args, f.From)
	}
	// Outside the ts_ns range UnixNano wraps, so clamp instead.
	switch {
	case f.Since == nil || f.Since.Before(MinTimestamp):
	case f.Since.After(MaxTimestamp):
		conds = append(conds, "0")
	default:
		conds = append(conds, "ts_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if f.TextContains != "" {
		// lower() folds ASCII only, so matching is ASCII case-insensitive.
		conds = append(conds, "instr(lower(text), lower(?)) > 0")
		args = append(args, f.TextContains)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Aggregate computes corpus-wide counts and the first/last timestamps.
func (s *Store) Aggregate(ctx context.Context) (Aggregate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Aggregate{}, unavailable("aggregate", err)
	}
	defer func() { _ = tx.Rollback() }()

	var agg Aggregate
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT from_msisdn) FROM messages;",
	).Scan(&agg.TotalMessages, &agg.DistinctSenders); err != nil {
		return Aggregate{}, unavailable("aggregate counts", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT from_msisdn, COUNT(*) AS n
FROM messages
GROUP BY from_msisdn
ORDER BY n DESC, from_msisdn ASC;`)
	if err != nil {
		return Aggregate{}, unavailable("aggregate senders", err)
	}
	agg.PerSender = make([]SenderCount, 0)
	for rows.Next() {
		var sc SenderCount
		if err := rows.Scan(&sc.From, &sc.Count); err != nil {
			_ = rows.Close()
			return Aggregate{}, unavailable("scan sender", err)
		}
		agg.PerSender = append(agg.PerSender, sc)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return Aggregate{}, unavailable("aggregate senders", err)
	}
	_ = rows.Close()

	if agg.TotalMessages == 0 {
		return agg, nil
	}

	first, err := boundaryTS(ctx, tx, "ASC")
	if err != nil {
		return Aggregate{}, err
	}
	last, err := boundaryTS(ctx, tx, "DESC")
	if err != nil {
		return Aggregate{}, err
	}
	agg.Earliest, agg.Latest = &first, &last
	return agg, nil
}

func boundaryTS(ctx context.Context, tx *sql.Tx, dir string) (string, error) {
	var ts string
	err := tx.QueryRowContext(ctx,
		"SELECT ts FROM messages ORDER BY ts_ns "+dir+", message_id "+dir+" LIMIT 1;",
	).Scan(&ts)
	if err != nil {
		return "", unavailable("aggregate bounds", err)
	}
	return ts, nil
}
