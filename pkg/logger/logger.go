// Package logger configures slog for the detector binaries and carries a
// request-scoped logger through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type (
	requestIDKey struct{}
	loggerKey    struct{}
)

// Setup installs the process-wide logger on stdout. Every record carries the
// service name.
func Setup(service, level, format string) {
	SetupWriter(os.Stdout, level, format)
	if service != "" {
		slog.SetDefault(slog.Default().With("service", service))
	}
}

// SetupWriter installs the default logger writing to w. The CLIs use it to
// keep logs on stderr while results go to stdout.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID tags ctx, and the logger FromContext returns, with id.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return context.WithValue(ctx, loggerKey{}, FromContext(ctx).With("request_id", id))
}

// With adds attributes to the logger carried by ctx.
func With(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, loggerKey{}, FromContext(ctx).With(args...))
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns the logger carried by ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
