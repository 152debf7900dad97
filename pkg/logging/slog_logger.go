package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

// CorrelationIDKey is the context key for correlation IDs
const CorrelationIDKey contextKey = "correlationID"

// WithCorrelationID returns a context carrying the given correlation ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// SlogLogger provides structured logging using slog
type SlogLogger struct {
	logger    *slog.Logger
	component string
}

// NewSlogLogger creates a new logger using slog backend
func NewSlogLogger(component string) *SlogLogger {
	return NewSlogLoggerWithWriter(component, os.Stderr)
}

// NewSlogLoggerWithWriter creates a slog backed logger writing to w
func NewSlogLoggerWithWriter(component string, w io.Writer) *SlogLogger {
	return &SlogLogger{
		logger:    slog.New(createHandler(w)),
		component: component,
	}
}

// createHandler creates an appropriate slog handler based on environment variables.
// Output defaults to stderr so that command output on stdout stays parseable.
func createHandler(output io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       getLogLevelSlog(),
		AddSource:   false,
		ReplaceAttr: replaceAttr,
	}

	if strings.ToUpper(os.Getenv("ECSWAIT_LOG_FORMAT")) == "JSON" {
		return slog.NewJSONHandler(output, opts)
	}
	return slog.NewTextHandler(output, opts)
}

// getLogLevelSlog determines the slog level from environment
func getLogLevelSlog() slog.Level {
	switch parseLevel(os.Getenv("ECSWAIT_LOG_LEVEL")) {
	case TRACE, DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceAttr customizes attribute names and values
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		switch level {
		case slog.LevelDebug:
			return slog.String(a.Key, logLevelDebug)
		case slog.LevelInfo:
			return slog.String(a.Key, logLevelInfo)
		case slog.LevelWarn:
			return slog.String(a.Key, logLevelWarn)
		case slog.LevelError:
			return slog.String(a.Key, logLevelError)
		}
	}
	return a
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := append([]any{"component", l.component}, args...)
	if corrID, ok := ctx.Value(CorrelationIDKey).(string); ok && corrID != "" {
		attrs = append(attrs, "correlation_id", corrID)
	}
	l.logger.Log(ctx, level, msg, attrs...)
}

// With returns a logger with additional key/value attributes
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{
		logger:    l.logger.With(args...),
		component: l.component,
	}
}

// Enabled reports whether records at level would be emitted
func (l *SlogLogger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}
