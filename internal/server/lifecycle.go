package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

const maxBackoff = 5 * time.Minute

// RunWithRecovery runs a background loop such as the rate limiter sweep or
// audit retention. A panic or an early return restarts fn after 1s, 2s,
// 4s ... capped at five minutes. It returns once ctx is cancelled.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context)) {
	for attempt := 1; ; attempt++ {
		runOnce(ctx, logger, name, attempt, fn)

		if ctx.Err() != nil {
			logger.Info("background loop stopped", "name", name)
			return
		}

		backoff := restartDelay(attempt)
		logger.Warn("background loop restarting", "name", name, "attempt", attempt, "backoff", backoff)

		select {
		case <-ctx.Done():
			logger.Info("background loop stopped", "name", name)
			return
		case <-time.After(backoff):
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, name string, attempt int, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("background loop panicked",
				"name", name,
				"panic", r,
				"stack", string(debug.Stack()),
				"attempt", attempt,
			)
		}
	}()
	fn(ctx)
}

func restartDelay(attempt int) time.Duration {
	if attempt > 9 {
		return maxBackoff
	}
	return min(time.Second<<(attempt-1), maxBackoff)
}

// SetupLogger creates the gateway's JSON logger on stdout.
func SetupLogger(level string) *slog.Logger {
	return NewLogger(os.Stdout, level)
}

// NewLogger creates a JSON logger writing to w. Unknown levels mean info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("service", "nopenet")
}
