package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New builds the process-wide JSON logger. Local and dev environments log at
// debug; everything else at info.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	switch appEnv {
	case "local", "dev":
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "ring-receptionist")
}

type ctxKey struct{}

// With stores a request-scoped logger in ctx.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger stored in ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ShutdownFlush exists so main can flush a buffered handler if one is ever
// swapped in. The JSON handler writes through, so this is a no-op today.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
