package logging

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterSuppressesWithinInterval(t *testing.T) {
	l := New(slog.Default())
	rl := NewRateLimiter(l, time.Hour)

	var calls atomic.Int32
	emit := func() { calls.Add(1) }

	rl.emit("k", emit)
	rl.emit("k", emit)
	rl.emit("k", emit)

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call within interval, got %d", got)
	}
}

func TestRateLimiterDistinctKeys(t *testing.T) {
	l := New(slog.Default())
	rl := NewRateLimiter(l, time.Hour)

	var calls atomic.Int32
	emit := func() { calls.Add(1) }

	rl.emit("a", emit)
	rl.emit("b", emit)

	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls for distinct keys, got %d", got)
	}
}

func TestRateLimiterAllowsAfterInterval(t *testing.T) {
	l := New(slog.Default())
	rl := NewRateLimiter(l, time.Millisecond)

	var calls atomic.Int32
	emit := func() { calls.Add(1) }

	rl.emit("k", emit)
	time.Sleep(5 * time.Millisecond)
	rl.emit("k", emit)

	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls after interval elapsed, got %d", got)
	}
}

func TestWarnDoesNotPanic(t *testing.T) {
	l := New(slog.Default())
	rl := NewRateLimiter(l, time.Hour)
	rl.Warn("pool4-exhausted", "pool4 exhausted", "mark", 1, "proto", "tcp")
}
