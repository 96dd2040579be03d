package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmptyPath is returned when no database path was configured.
var ErrEmptyPath = errors.New("sqlite path is empty")

const driver = "sqlite"

// PathFromURL turns a DATABASE_URL value into a filesystem path.
// Both "sqlite:///data/app.db" and a bare path are accepted.
func PathFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "sqlite:///"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(raw, "sqlite://"); ok {
		return rest
	}
	return raw
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the messages schema exists.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckFilesystem(path); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN applies pragmas per connection so every pooled connection gets
// WAL and the busy timeout, not just the first one.
func sqliteDSN(path string) string {
	values := url.Values{}
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	values.Add("_pragma", "foreign_keys(ON)")
	return fmt.Sprintf("file:%s?%s", path, values.Encode())
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
  message_id  TEXT PRIMARY KEY,
  from_msisdn TEXT NOT NULL,
  to_msisdn   TEXT NOT NULL,
  ts          TEXT NOT NULL,
  ts_ns       INTEGER NOT NULL,
  text        TEXT NOT NULL,
  body_hash   TEXT NOT NULL DEFAULT '',
  created_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS messages_ts_idx ON messages(ts_ns, message_id);`,
		`CREATE INDEX IF NOT EXISTS messages_from_ts_idx ON messages(from_msisdn, ts_ns, message_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
