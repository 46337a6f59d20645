// Package breakers wraps sony/gobreaker with the trip policy used for the
// upstream price API: open after 3 consecutive failures, or after a 5%
// failure rate once at least 20 requests have been counted in the window.
package breakers

import (
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

const (
	countingWindow  = 60 * time.Second
	recoveryTimeout = 60 * time.Second

	tripConsecutiveFailures = 3
	tripFailureRate         = 0.05
	tripMinRequests         = 20
)

// Breaker shields a single upstream dependency. Callers route every request
// through Execute; while the breaker is open, calls fail immediately with
// gobreaker.ErrOpenState instead of hitting the upstream.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// New creates a breaker named after the upstream it protects
func New(name string) *Breaker {
	settings := cb.Settings{
		Name:     name,
		Interval: countingWindow,
		Timeout:  recoveryTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= tripConsecutiveFailures {
				return true
			}
			if counts.Requests < tripMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > tripFailureRate
		},
		OnStateChange: func(name string, from, to cb.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Breaker{cb: cb.NewCircuitBreaker(settings)}
}

// Execute runs fn under the breaker's failure accounting
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State exposes the current breaker state for health reporting
func (b *Breaker) State() cb.State {
	return b.cb.State()
}

// Name returns the upstream label the breaker was created with
func (b *Breaker) Name() string {
	return b.cb.Name()
}
