package logging

import (
	"context"
	"log/slog"
	"time"
)

// String creates a string attribute.
func String(key, value string) slog.Attr { return slog.String(key, value) }

// Int creates an int attribute.
func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

// Int64 creates an int64 attribute.
func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

// Bool creates a bool attribute.
func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

// Duration creates a duration attribute.
func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

// Any creates an attribute for arbitrary values.
func Any(key string, value any) slog.Attr { return slog.Any(key, value) }

// Error creates a standardized error attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Args converts attrs into the variadic any form accepted by slog methods.
func Args(attrs ...slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// NewComponentLogger returns a child logger tagged with a component name.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// NewNop returns a logger that discards everything. Useful for tests.
func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopHandler) WithGroup(string) slog.Handler           { return h }
