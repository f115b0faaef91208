/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-batchproxy/lrucache"
)

// SlidingWindowLimiter allows at most Rate.Count requests per key within any window of Rate.Duration.
// Per-key windows live in an LRU cache, so the least recently seen keys are forgotten first.
type SlidingWindowLimiter struct {
	rate   Rate
	shared *slidingwindow.Limiter
	perKey *lrucache.LRUCache[string, *slidingwindow.Limiter]
}

// NewSlidingWindowLimiter creates a SlidingWindowLimiter. Zero maxKeys makes all keys share one window.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	l := &SlidingWindowLimiter{rate: maxRate}
	if maxKeys == 0 {
		l.shared = l.newWindow()
		return l, nil
	}
	cache, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	l.perKey = cache
	return l, nil
}

func (l *SlidingWindowLimiter) newWindow() *slidingwindow.Limiter {
	// Errors come only from synchronizing windows, local windows never produce them.
	lim, _ := slidingwindow.NewLimiter(l.rate.Duration, int64(l.rate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) { return slidingwindow.NewLocalWindow() })
	return lim
}

func (l *SlidingWindowLimiter) window(key string) *slidingwindow.Limiter {
	if l.shared != nil {
		return l.shared
	}
	lim, _ := l.perKey.GetOrAdd(key, l.newWindow)
	return lim
}

// Allow implements Limiter. The retry delay points to the start of the next window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.window(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.rate.Duration).Add(l.rate.Duration).Sub(now), nil
}
