package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/gkeb/node4j/internal/config"
)

// NewLogger builds a logger from cfg writing to w. Unknown levels fall
// back to info and unknown formats to JSON.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = NewTextHandler(w, level)
	} else {
		handler = NewJSONHandler(w, level)
	}
	return slog.New(&correlatingHandler{inner: handler})
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewJSONHandler creates a new JSON log handler with the specified output and level.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewTextHandler creates a new text log handler with the specified output and level.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// correlatingHandler adds trace correlation to every record and redacts
// sensitive attributes at info level and above.
type correlatingHandler struct {
	inner slog.Handler
}

func (h *correlatingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *correlatingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	redact := r.Level >= slog.LevelInfo
	r.Attrs(func(a slog.Attr) bool {
		if redact && isSensitive(a.Key) {
			a = slog.String(a.Key, "[REDACTED]")
		}
		out.AddAttrs(a)
		return true
	})

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, out)
}

func (h *correlatingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlatingHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *correlatingHandler) WithGroup(name string) slog.Handler {
	return &correlatingHandler{inner: h.inner.WithGroup(name)}
}

var sensitiveKeys = map[string]bool{
	"params":     true,
	"parameters": true,
	"password":   true,
	"secret":     true,
	"token":      true,
	"credential": true,
	"auth":       true,
}

// isSensitive reports whether a key names parameters or credentials.
func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(strings.ReplaceAll(key, "_", ""))]
}
