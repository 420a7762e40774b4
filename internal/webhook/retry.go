package webhook

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is stamped on every new delivery.
const DefaultMaxAttempts = 5

// Backoff spaces out redelivery attempts. Schedule[n] is the wait after the
// (n+1)th failure; failures past the end reuse the last step. Each wait is
// spread by up to ±Jitter of its length.
type Backoff struct {
	Schedule []time.Duration
	Jitter   float64

	// float returns a value in [0,1); nil uses math/rand.
	float func() float64
}

// DefaultBackoff waits 1m, 5m, 30m, 2h, then 12h, each ±20%.
var DefaultBackoff = Backoff{
	Schedule: []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour, 12 * time.Hour},
	Jitter:   0.2,
}

// Delay returns the wait after the given number of earlier failed attempts.
func (b Backoff) Delay(failures int) time.Duration {
	if len(b.Schedule) == 0 {
		return 0
	}
	step := b.Schedule[min(max(failures, 0), len(b.Schedule)-1)]
	if b.Jitter <= 0 {
		return step
	}
	f := b.float
	if f == nil {
		f = rand.Float64
	}
	spread := (2*f() - 1) * b.Jitter
	return step + time.Duration(float64(step)*spread)
}

// Next is now plus Delay(failures).
func (b Backoff) Next(now time.Time, failures int) time.Time {
	return now.Add(b.Delay(failures))
}

// attemptsExhausted reports whether a delivery that has now made attempt
// attempts may not be retried.
func attemptsExhausted(attempt, maxAttempts int) bool {
	return attempt >= maxAttempts
}
