package jobscheduler

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// exponentialDelay computes the exponential backoff for a given attempt
// (1-indexed), replacing the spec's hand-rolled initial*2^(attempt-1) with
// cenkalti/backoff's ExponentialBackOff. Randomization is disabled so the
// delay sequence is deterministic for tests; jitter is permitted but not
// required by spec.md.
func exponentialDelay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	// The library's default MaxInterval of 60s would silently cap growth;
	// the spec's initial*2^(attempt-1) formula is unbounded, so push the cap
	// well past any realistic retry sequence instead of disabling it (0
	// collapses the interval to zero on the very next increment).
	b.MaxInterval = 24 * time.Hour

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
