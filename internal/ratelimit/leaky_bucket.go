/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter limits every key with GCRA (a leaky bucket variant) kept in an in-memory LRU store.
// Burst requests above the steady rate are let through before the bucket overflows.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketLimiter creates a LeakyBucketLimiter tracking at most maxKeys keys.
func NewLeakyBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create gcra store: %w", err)
	}
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(maxRate.Count, maxRate.Duration), MaxBurst: maxBurst}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("create gcra limiter for %s: %w", maxRate, err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Allow implements Limiter.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return false, 0, fmt.Errorf("gcra rate limit: %w", err)
	}
	if limited {
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}
