package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryLimiter keeps windows in process memory. Each Admit is a single
// locked read-increment-compare step.
type MemoryLimiter struct {
	rule Rule

	mu      sync.Mutex
	windows map[string]*window
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(rule Rule) (*MemoryLimiter, error) {
	if rule.Requests <= 0 || rule.Window <= 0 {
		return nil, fmt.Errorf("rate limit rule must have positive values")
	}
	return &MemoryLimiter{rule: rule, windows: make(map[string]*window)}, nil
}

func (l *MemoryLimiter) Admit(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.start.Add(l.rule.Window)) {
		w = &window{count: 1, start: now}
		l.windows[key] = w
		return l.decision(true, w), nil
	}

	if w.count >= l.rule.Requests {
		return l.decision(false, w), nil
	}
	w.count++
	return l.decision(true, w), nil
}

func (l *MemoryLimiter) decision(allowed bool, w *window) Decision {
	return Decision{
		Allowed: allowed,
		Count:   w.count,
		Limit:   l.rule.Requests,
		ResetAt: w.start.Add(l.rule.Window),
	}
}

// Cleanup drops windows that have expired at now.
func (l *MemoryLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.start.Add(l.rule.Window)) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Cleanup every interval until ctx is done. A panic in a
// sweep is logged and the loop keeps running.
func (l *MemoryLimiter) RunJanitor(ctx context.Context, every time.Duration, logger *slog.Logger) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			l.sweep(now, logger)
		}
	}
}

func (l *MemoryLimiter) sweep(now time.Time, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("rate limit janitor panicked", "panic", rec)
		}
	}()
	if n := l.Cleanup(now); n > 0 {
		logger.Debug("evicted expired rate limit windows", "count", n)
	}
}
