package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.True(t, ValidLevel("warn"))
	assert.False(t, ValidLevel("chatty"))
}

func TestNewJSONAndText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "INFO", "json").Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	New(&buf, "INFO", "text").Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, "DEBUG", "TEXT").Debug("shown")
	assert.True(t, strings.Contains(buf.String(), "msg=shown"))
}

func TestFields(t *testing.T) {
	AddFields(context.Background(), slog.String("ignored", "x"))

	ctx, f := WithFields(context.Background())
	AddFields(ctx, slog.String("message_id", "m1"))
	AddFields(ctx, slog.Bool("dup", true))

	attrs := f.Attrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "message_id", attrs[0].Key)
	assert.Equal(t, true, attrs[1].Value.Bool())
}

func TestSetup(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be enabled")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("store").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "store" {
		t.Errorf("Expected component 'store', got %v", out["component"])
	}
}
