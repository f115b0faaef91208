/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// ParseRate parses a rate in the "<count>/<unit>" form, where unit is one of s, m, h.
// For example, "100/s" or "1000/m".
func ParseRate(s string) (Rate, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Rate{}, fmt.Errorf("incorrect format for rate %q, should be N/(s|m|h), for example 10/s", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rate{}, fmt.Errorf("incorrect count in rate %q: %w", s, err)
	}
	if count <= 0 {
		return Rate{}, fmt.Errorf("count in rate %q should be positive", s)
	}
	var dur time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return Rate{}, fmt.Errorf("incorrect unit in rate %q, should be one of s, m, h", s)
	}
	return Rate{Count: count, Duration: dur}, nil
}

func (r Rate) String() string {
	unit := "s"
	switch r.Duration {
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	}
	return strconv.Itoa(r.Count) + "/" + unit
}

// MarshalText encodes the rate in the "<count>/<unit>" form.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes the rate from the "<count>/<unit>" form.
func (r *Rate) UnmarshalText(text []byte) error {
	parsed, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Alg represents a rate limiting algorithm.
type Alg string

// Supported rate limiting algorithms.
const (
	AlgLeakyBucket   Alg = "leakyBucket"
	AlgSlidingWindow Alg = "slidingWindow"
)

// NewLimiter creates a Limiter for the passed algorithm.
func NewLimiter(alg Alg, maxRate Rate, maxBurst, maxKeys int) (Limiter, error) {
	switch alg {
	case AlgLeakyBucket:
		return NewLeakyBucketLimiter(maxRate, maxBurst, maxKeys)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(maxRate, maxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limit alg %q", alg)
	}
}
