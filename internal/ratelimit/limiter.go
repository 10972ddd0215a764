// Package ratelimit counts requests per client and action in fixed windows
// kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

type ActionConfig struct {
	Limit  int64
	Window time.Duration
}

const (
	ActionCreate = "create"
	ActionJoin   = "join"
)

// Counter is the storage a Limiter counts in.
type Counter interface {
	// Incr increments key, arms its expiry on first use and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type Limiter struct {
	counter Counter
	limits  map[string]ActionConfig
	now     func() time.Time
}

type CheckResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
	Limit     int64 `json:"limit"`
}

// DefaultLimits returns per-minute limits for session creation and joins.
func DefaultLimits(create, join int64) map[string]ActionConfig {
	return map[string]ActionConfig{
		ActionCreate: {Limit: create, Window: time.Minute},
		ActionJoin:   {Limit: join, Window: time.Minute},
	}
}

func NewLimiter(counter Counter, limits map[string]ActionConfig) *Limiter {
	return &Limiter{counter: counter, limits: limits, now: time.Now}
}

func (l *Limiter) Check(ctx context.Context, clientID, action string) (*CheckResult, error) {
	config, ok := l.limits[action]
	if !ok {
		// Default limit for unknown actions
		config = ActionConfig{Limit: 100, Window: time.Minute}
	}

	key := fmt.Sprintf("rate:%s:%s", clientID, action)

	count, err := l.counter.Incr(ctx, key, config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	ttl, err := l.counter.TTL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get TTL: %w", err)
	}
	if ttl < 0 {
		ttl = config.Window
	}

	remaining := config.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &CheckResult{
		Allowed:   count <= config.Limit,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl).Unix(),
		Limit:     config.Limit,
	}, nil
}
