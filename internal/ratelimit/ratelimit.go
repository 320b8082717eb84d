package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SourceLimit configures the token bucket for one source.
type SourceLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// Status is a point-in-time view of one source bucket.
type Status struct {
	Tokens            float64 `json:"tokens"`
	BurstSize         int     `json:"burst_size"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

// Limiter throttles calls per source with independent token buckets. Tokens
// refill continuously at requests_per_minute/60 per second up to burst_size.
// Requests are never dropped: callers either proceed on Allow or block in
// Wait for the computed refill time.
type Limiter struct {
	defaults SourceLimit
	limits   map[string]SourceLimit
	logger   *zap.Logger

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter with the built-in per-source limits overlaid
// by the supplied overrides. Sources absent from both tables fall back to a
// conservative default.
func NewLimiter(overrides map[string]SourceLimit, logger *zap.Logger) *Limiter {
	limits := make(map[string]SourceLimit, len(builtInSourceLimits)+len(overrides))
	for source, limit := range builtInSourceLimits {
		limits[source] = limit
	}
	for source, limit := range overrides {
		if limit.RequestsPerMinute > 0 && limit.BurstSize > 0 {
			limits[source] = limit
		}
	}

	return &Limiter{
		defaults: SourceLimit{RequestsPerMinute: 30, BurstSize: 5},
		limits:   limits,
		logger:   logger,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Allow attempts to consume one token for source without blocking.
func (l *Limiter) Allow(source string) bool {
	return l.bucket(source).Allow()
}

// WaitTime computes how long until one token is available for source without
// consuming anything.
func (l *Limiter) WaitTime(source string) time.Duration {
	b := l.bucket(source)
	tokens := b.TokensAt(time.Now())
	if tokens >= 1 {
		return 0
	}
	need := 1 - tokens
	wait := time.Duration(need / float64(b.Limit()) * float64(time.Second))
	if wait < 0 {
		return 0
	}
	return wait
}

// Wait blocks until one token is available for source or ctx is done. The
// consumed token admits the caller's request.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	start := time.Now()
	if err := l.bucket(source).Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.logger.Debug("Rate limit wait",
			zap.String("source", source),
			zap.Duration("waited", waited),
		)
		observeWait(source, waited)
	}
	return nil
}

// Status reports the current bucket fill for source.
func (l *Limiter) Status(source string) Status {
	limit := l.limitFor(source)
	return Status{
		Tokens:            l.bucket(source).TokensAt(time.Now()),
		BurstSize:         limit.BurstSize,
		RequestsPerMinute: limit.RequestsPerMinute,
	}
}

// Limit returns the configured limit for source.
func (l *Limiter) Limit(source string) SourceLimit {
	return l.limitFor(source)
}

func (l *Limiter) limitFor(source string) SourceLimit {
	if limit, ok := l.limits[source]; ok {
		return limit
	}
	return l.defaults
}

func (l *Limiter) bucket(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[source]; ok {
		return b
	}
	limit := l.limitFor(source)
	b := rate.NewLimiter(rate.Limit(float64(limit.RequestsPerMinute)/60.0), limit.BurstSize)
	l.buckets[source] = b
	return b
}

// builtInSourceLimits reflects real-world source tolerances: documentation
// and code hosts take sustained traffic, social feeds and blogs throttle
// aggressively.
var builtInSourceLimits = map[string]SourceLimit{
	"documentation": {RequestsPerMinute: 120, BurstSize: 20},
	"github":        {RequestsPerMinute: 60, BurstSize: 10},
	"arxiv":         {RequestsPerMinute: 60, BurstSize: 10},
	"stackoverflow": {RequestsPerMinute: 40, BurstSize: 8},
	"hackernews":    {RequestsPerMinute: 30, BurstSize: 5},
	"reddit":        {RequestsPerMinute: 25, BurstSize: 4},
	"youtube":       {RequestsPerMinute: 25, BurstSize: 4},
	"medium":        {RequestsPerMinute: 20, BurstSize: 3},
	"twitter":       {RequestsPerMinute: 15, BurstSize: 3},
}
