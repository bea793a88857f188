// Package ratelimit implements fixed-window request quotas keyed by identity.
package ratelimit

import (
	"context"
	"time"
)

type Rule struct {
	Requests int
	Window   time.Duration
}

type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining is the number of requests still admitted in the current window.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Limiter admits or throttles one counted request for key.
type Limiter interface {
	Admit(ctx context.Context, key string, now time.Time) (Decision, error)
}
