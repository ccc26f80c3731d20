// Package retry defines the backoff policy shared by the fetch orchestrator
// and the real-time transport's reconnect loop.
package retry

import "time"

// Policy is an exponential backoff schedule: min(base * 2^attempt, max),
// giving up after MaxAttempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default matches the engine's stock configuration.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Delay returns the wait before the given attempt. Attempt numbering starts
// at 1 (the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the given number of failed attempts has spent
// the whole budget.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
