package executor

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker wraps sony/gobreaker with the exact thresholds spec.md
// §4.6 mandates: 5 consecutive failures opens the breaker, a 5-minute
// cooldown before the next half-open trial, and 2 consecutive half-open
// successes required to close again.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    0,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}
