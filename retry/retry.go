/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies for retried downstream requests.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy creates a fresh BackOff for every retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// ExponentialBackoffPolicy doubles the delay (with jitter) after each attempt.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an ExponentialBackoffPolicy. Zero maxRetryAttempts means no limit.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, maxAttempts: maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.MaxElapsedTime = 0
	return limited(eb, p.maxAttempts)
}

// ConstantBackoffPolicy waits the same interval between attempts.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a ConstantBackoffPolicy. Zero maxRetryAttempts means no limit.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval: interval, maxAttempts: maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return limited(backoff.NewConstantBackOff(p.interval), p.maxAttempts)
}

func limited(bf backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(maxAttempts))
	}
	bf.Reset()
	return bf
}
