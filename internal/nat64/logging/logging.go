// Package logging provides the structured logger every nat64d component
// takes a reference to, plus a rate limiter for hot-path warnings that must
// never log-storm (the datapath's EXHAUSTED / anomalous-packet lines).
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Logger wraps log/slog with the key-value call shape used throughout
// nat64d: Info("message", "key", value, "key2", value2).
type Logger struct {
	base *slog.Logger
}

// New wraps an existing *slog.Logger.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// NewText builds a text-handler logger writing to w at the given level,
// the default shape for a daemon running under systemd/syslog capture.
func NewText(w *os.File, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(h)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// With returns a Logger that always includes the given key-values.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{base: l.base.With(kv...)}
}

// RateLimiter suppresses repeated log lines keyed by an arbitrary string,
// emitting at most once per interval per key. The datapath is not allowed
// to block or allocate unboundedly on every packet, so this is the
// collaborator it hands anomalies and EXHAUSTED warnings to instead of
// logging them directly.
type RateLimiter struct {
	logger   *Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimiter builds a rate limiter that emits at most one line per key
// every interval, through logger.
func NewRateLimiter(logger *Logger, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		logger:   logger,
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Warn emits msg at Warn level, at most once per interval for the given
// key, mirroring the original's log_warn_once semantics for per-key
// anomalies (pool4 exhaustion per mark+proto, malformed packets per
// reason).
func (r *RateLimiter) Warn(key string, msg string, kv ...any) {
	r.emit(key, func() { r.logger.Warn(msg, kv...) })
}

// emit runs fn only if key has not been emitted within the limiter's
// interval, and records now as key's last emission when it does.
func (r *RateLimiter) emit(key string, fn func()) {
	now := time.Now()

	r.mu.Lock()
	last, seen := r.last[key]
	due := !seen || now.Sub(last) >= r.interval
	if due {
		r.last[key] = now
	}
	r.mu.Unlock()

	if due {
		fn()
	}
}

// contextKey is unexported to avoid collisions with other packages' context
// keys.
type contextKey struct{}

// WithContext attaches a Logger to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the Logger attached to ctx, or a default logger if
// none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return New(slog.Default())
}
