// Package logging is the service's structured logger: JSON slog output with
// service attributes and request identifiers pulled from the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel is one of debug, info, warn or error
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(string(l)))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig reads ENVIRONMENT and VERSION from the environment
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: serviceName,
		Environment: envOr("ENVIRONMENT", "development"),
		Version:     envOr("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// Logger embeds slog.Logger and adds the production log vocabulary
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger. Every record carries the service attributes and,
// when logged with a context, the request, correlation and trace ids.
func New(config *Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	json := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       config.Level.slogLevel(),
		AddSource:   config.AddSource,
		ReplaceAttr: utcTime,
	})

	base := slog.New(contextHandler{json}).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)
	return &Logger{Logger: base}
}

// NewNop discards everything
func NewNop() *Logger {
	return New(&Config{Level: LevelError, ServiceName: "test", Output: io.Discard})
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
	}
	return a
}

// With returns a child logger carrying args, keeping the Logger helpers
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

// WithJob scopes the logger to a production job
func (l *Logger) WithJob(jobID, workOrder string) *Logger {
	return l.With("jobId", jobID, "workOrder", workOrder)
}

// Audit records an operator action
func (l *Logger) Audit(ctx context.Context, action, resource, resourceID string, details map[string]any) {
	attrs := make([]any, 0, 6+len(details)*2)
	attrs = append(attrs, "auditAction", action, "resource", resource, "resourceId", resourceID)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	l.InfoContext(ctx, "Audit event", attrs...)
}

// DatabaseQuery logs at debug, or error when the query failed
func (l *Logger) DatabaseQuery(ctx context.Context, collection, operation string, duration time.Duration, success bool, rowsAffected int64) {
	l.Log(ctx, outcomeLevel(success), "Database query",
		"collection", collection,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", success,
		"rowsAffected", rowsAffected,
	)
}

// KafkaPublish logs at debug, or error when the publish failed
func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	l.Log(ctx, outcomeLevel(success), "Kafka publish",
		"topic", topic,
		"eventType", eventType,
		"success", success,
		"durationMs", duration.Milliseconds(),
	)
}

func outcomeLevel(success bool) slog.Level {
	if success {
		return slog.LevelDebug
	}
	return slog.LevelError
}

// Panic logs a recovered panic with the current goroutine's stack
func (l *Logger) Panic(ctx context.Context, recovered any) {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	l.ErrorContext(ctx, "Panic recovered", "panic", recovered, "stack", string(stack[:n]))
}

// SetDefault sets this logger as the default slog logger
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
