package service

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy spaces reconciliation retries of one invoice.
// Delay(n) = min(Base * 2^(n-1), Max) with n floored at 1.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func NewBackoffPolicy(base, max time.Duration) BackoffPolicy {
	return BackoffPolicy{Base: base, Max: max}
}

// Delay returns how long an invoice with the given attempt count waits after its last update
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if p.Base <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.Max
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
		if d >= p.Max {
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
