package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logRetentionDays matches the product's one-week local log window.
const logRetentionDays = 7

// NewLogger builds the daemon logger: a text handler over stderr plus a
// rotating file, with every record mirrored as a "[LEVEL] message" line
// into the stream for live viewers. stream may be nil.
func NewLogger(logFile string, level slog.Level, stream *Stream) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     logRetentionDays,
	}
	base := slog.NewTextHandler(io.MultiWriter(os.Stderr, rotator), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(&mirrorHandler{inner: base, stream: stream}), rotator, nil
}

// mirrorHandler forwards records to the wrapped handler and publishes a
// compact rendering to the stream. Attrs accumulated through With are
// carried so streamed lines keep their component context.
type mirrorHandler struct {
	inner  slog.Handler
	stream *Stream
	attrs  []slog.Attr
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *mirrorHandler) Handle(ctx context.Context, rec slog.Record) error {
	if h.stream != nil {
		h.stream.Publish(renderLine(rec, h.attrs))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &mirrorHandler{inner: h.inner.WithAttrs(attrs), stream: h.stream, attrs: merged}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{inner: h.inner.WithGroup(name), stream: h.stream, attrs: h.attrs}
}

func renderLine(rec slog.Record, base []slog.Attr) string {
	line := fmt.Sprintf("[%s] %s", rec.Level, rec.Message)
	for _, a := range base {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	return line
}
