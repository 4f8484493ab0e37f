// Package telemetry provides the engine's structured, leveled logging,
// redacting sensitive fields (tokens, credentials) before they reach any
// sink, the way the teacher's SecurityLogger redacts sensitive log
// content before writing it.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/pesde-pm/pesde/internal/engineerr"
)

// redactKeys are attribute keys whose values are always replaced with
// "[REDACTED]" regardless of content, mirroring the teacher's
// redactPatterns list in security_logging.go.
var redactKeys = []string{
	"password", "passwd", "secret", "key", "token", "auth",
	"credential", "private", "bearer", "authorization", "cookie",
}

func shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range redactKeys {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// redactingHandler wraps an slog.Handler, replacing the value of any
// attribute whose key matches a sensitive pattern.
type redactingHandler struct {
	slog.Handler
}

func (h redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		if shouldRedact(a.Key) {
			redacted.AddAttrs(slog.String(a.Key, "[REDACTED]"))
		} else {
			redacted.AddAttrs(a)
		}

		return true
	})

	return h.Handler.Handle(ctx, redacted)
}

func (h redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return redactingHandler{h.Handler.WithAttrs(attrs)}
}

func (h redactingHandler) WithGroup(name string) slog.Handler {
	return redactingHandler{h.Handler.WithGroup(name)}
}

// Logger is the engine's structured logger: an *slog.Logger whose handler
// always redacts sensitive attribute values.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing JSON lines to w at the given minimum level.
func New(w *os.File, level slog.Level) *Logger {
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return &Logger{Logger: slog.New(redactingHandler{base})}
}

// Default is the process-wide logger, writing to stderr at Info level
// unless PESDE_LOG_LEVEL overrides it.
var Default = New(os.Stderr, levelFromEnv())

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PESDE_LOG_LEVEL"))) {
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

// LogEngineError logs an *engineerr.Error with its Category, Code, and
// Context attached as structured fields, so operators can filter by
// category without parsing message strings.
func (l *Logger) LogEngineError(msg string, err *engineerr.Error) {
	attrs := []any{
		slog.String("category", string(err.Category)),
		slog.String("code", string(err.Code)),
		slog.String("caller", err.Caller),
	}

	for k, v := range err.Context {
		attrs = append(attrs, slog.Any(k, v))
	}

	l.Error(msg, attrs...)
}
