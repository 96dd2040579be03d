package log

import (
	"context"
	"log/slog"
	"sync"
)

type fieldsKey struct{}

// Fields collects attributes that inner handlers add to the enclosing
// request's log line.
type Fields struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// WithFields returns a context carrying a fresh collector.
func WithFields(ctx context.Context) (context.Context, *Fields) {
	f := &Fields{}
	return context.WithValue(ctx, fieldsKey{}, f), f
}

// AddFields appends attrs to the collector in ctx. No-op without one.
func AddFields(ctx context.Context, attrs ...slog.Attr) {
	f, ok := ctx.Value(fieldsKey{}).(*Fields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.attrs = append(f.attrs, attrs...)
	f.mu.Unlock()
}

// Attrs returns a copy of the collected attributes.
func (f *Fields) Attrs() []slog.Attr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slog.Attr(nil), f.attrs...)
}
