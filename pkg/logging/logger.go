// Package logging provides component-scoped structured logging on top of log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// LogLevel represents the severity of a log message
type LogLevel int

// LogLevel constants represent the various log levels
const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

const (
	logLevelTrace = "TRACE"
	logLevelDebug = "DEBUG"
	logLevelInfo  = "INFO"
	logLevelWarn  = "WARN"
	logLevelError = "ERROR"
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return logLevelTrace
	case DEBUG:
		return logLevelDebug
	case INFO:
		return logLevelInfo
	case WARN:
		return logLevelWarn
	case ERROR:
		return logLevelError
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case logLevelTrace:
		return TRACE
	case logLevelDebug:
		return DEBUG
	case logLevelWarn:
		return WARN
	case logLevelError:
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured logging with context
type Logger struct {
	component  string
	level      LogLevel
	slogLogger *SlogLogger
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	return &Logger{
		component:  component,
		level:      parseLevel(os.Getenv("ECSWAIT_LOG_LEVEL")),
		slogLogger: NewSlogLogger(component),
	}
}

// NewLoggerWithWriter creates a logger that writes to w at the given level.
// Mostly useful in tests.
func NewLoggerWithWriter(component string, level LogLevel, w io.Writer) *Logger {
	return &Logger{
		component: component,
		level:     level,
		slogLogger: &SlogLogger{
			logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
				Level:       slog.LevelDebug,
				ReplaceAttr: replaceAttr,
			})),
			component: component,
		},
	}
}

// Component returns the component name the logger was created for
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) logf(ctx context.Context, level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case TRACE, DEBUG:
		l.slogLogger.log(ctx, slog.LevelDebug, msg)
	case INFO:
		l.slogLogger.log(ctx, slog.LevelInfo, msg)
	case WARN:
		l.slogLogger.log(ctx, slog.LevelWarn, msg)
	case ERROR:
		l.slogLogger.log(ctx, slog.LevelError, msg)
	}
}

// Trace logs a trace-level message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.logf(context.Background(), TRACE, format, args...)
}

// Debug logs a debug-level message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(context.Background(), DEBUG, format, args...)
}

// Info logs an info-level message
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(context.Background(), INFO, format, args...)
}

// Warn logs a warning-level message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(context.Background(), WARN, format, args...)
}

// Error logs an error-level message
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(context.Background(), ERROR, format, args...)
}

// WithContext logs with context information such as the correlation ID
func (l *Logger) WithContext(ctx context.Context, level LogLevel, format string, args ...interface{}) {
	l.logf(ctx, level, format, args...)
}

// WithFields returns a logger with additional fields attached to every record
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{
		component:  l.component,
		level:      l.level,
		slogLogger: l.slogLogger.With(args...),
	}
}

// WithCorrelation returns a logger with correlation ID
func (l *Logger) WithCorrelation(correlationID string) *Logger {
	return l.WithFields(map[string]interface{}{"correlation_id": correlationID})
}

// IsTraceEnabled returns true if trace logging is enabled
func (l *Logger) IsTraceEnabled() bool {
	return l.level <= TRACE
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= DEBUG
}

// Operation logs an operation with structured data
func (l *Logger) Operation(ctx context.Context, operation string, details map[string]interface{}) {
	if !l.IsDebugEnabled() {
		return
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{"operation", operation}
	for _, k := range keys {
		args = append(args, k, details[k])
	}
	l.slogLogger.log(ctx, slog.LevelDebug, "Operation", args...)
}

// Success logs a successful operation
func (l *Logger) Success(ctx context.Context, operation string, details ...interface{}) {
	if INFO < l.level {
		return
	}
	args := []any{"operation", operation, "status", "success"}
	if len(details) > 0 {
		args = append(args, "details", details[0])
	}
	l.slogLogger.log(ctx, slog.LevelInfo, "Operation completed successfully", args...)
}

// Failure logs a failed operation
func (l *Logger) Failure(ctx context.Context, operation string, err error) {
	l.slogLogger.log(ctx, slog.LevelError, "Operation failed",
		"operation", operation,
		"status", "failed",
		"error", err)
}
