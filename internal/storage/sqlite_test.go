package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteBootstrapsMessages(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "app.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='messages';").Scan(&name); err != nil {
		t.Fatalf("messages table missing: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode=%q, want wal", mode)
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "app.db")
	for i := 0; i < 2; i++ {
		db, err := OpenSQLite(context.Background(), dbPath)
		if err != nil {
			t.Fatalf("OpenSQLite #%d: %v", i, err)
		}
		_ = db.Close()
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(context.Background(), "")
	if !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestPathFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"sqlite:////data/app.db": "/data/app.db",
		"sqlite:///./test.db":    "./test.db",
		"/var/lib/lyftr/app.db":  "/var/lib/lyftr/app.db",
		"  sqlite:///x.db ":      "x.db",
	}
	for in, want := range cases {
		if got := PathFromURL(in); got != want {
			t.Errorf("PathFromURL(%q)=%q, want %q", in, got, want)
		}
	}
}
