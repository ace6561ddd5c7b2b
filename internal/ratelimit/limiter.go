package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Limiter applies one limit/window pair on top of a Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewLimiter(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: limit, window: window, logger: logger, now: time.Now}
}

// Allow records a hit for key. A failing store lets the request through.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.store == nil || l.limit <= 0 {
		return true, 0
	}
	decision, err := l.store.Take(ctx, key, l.limit, l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request", slog.String("error", err.Error()))
		return true, 0
	}
	if decision.Allowed {
		return true, 0
	}
	return false, decision.RetryAfter(l.now())
}
