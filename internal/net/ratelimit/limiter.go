// Package ratelimit provides token-bucket throttling for outbound calls to
// the price API. The upstream is community-run and unauthenticated, so the
// budget is deliberately conservative and shared across all consumers in the
// process.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound requests per endpoint path. Each endpoint gets
// its own bucket so a burst of snapshot polls cannot starve the occasional
// metadata refresh.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	interval time.Duration
	burst    int
}

// New creates a limiter that admits one request per interval with the given
// burst headroom on each endpoint
func New(interval time.Duration, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

func (l *Limiter) bucket(endpoint string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[endpoint]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[endpoint]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Every(l.interval), l.burst)
	l.buckets[endpoint] = b
	return b
}

// Wait blocks until the endpoint's bucket admits a request or the context is
// cancelled
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	return l.bucket(endpoint).Wait(ctx)
}

// Allow reports whether a request to the endpoint may proceed right now
func (l *Limiter) Allow(endpoint string) bool {
	return l.bucket(endpoint).Allow()
}

// Tokens returns the tokens currently available for the endpoint, for
// health and debug reporting
func (l *Limiter) Tokens(endpoint string) float64 {
	return l.bucket(endpoint).Tokens()
}
