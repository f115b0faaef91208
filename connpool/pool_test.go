/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package connpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type testConn struct {
	id int64
}

type testFactory struct {
	calls  atomic.Int64
	closed atomic.Int64
	live   atomic.Int64
	peak   atomic.Int64
	err    error
	delay  time.Duration
}

func (f *testFactory) create(ctx context.Context) (*testConn, error) {
	n := f.calls.Inc()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	live := f.live.Inc()
	for {
		peak := f.peak.Load()
		if live <= peak || f.peak.CAS(peak, live) {
			break
		}
	}
	return &testConn{id: n}, nil
}

func (f *testFactory) close(*testConn) {
	f.closed.Inc()
	f.live.Dec()
}

func newTestPool(capacity int, f *testFactory) *Pool[*testConn] {
	return NewWithOpts[*testConn](capacity, f.create, Opts[*testConn]{Close: f.close})
}

func waitForWaiters[T any](t *testing.T, p *Pool[T], n int) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stats().Waiters == n }, time.Second, time.Millisecond)
}

func TestPool_Acquire(t *testing.T) {
	t.Run("creates lazily and reuses released handles", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(2, f)
		require.Equal(t, 0, p.Stats().Resident)

		c1, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(c1)

		c2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Same(t, c1, c2)
		require.EqualValues(t, 1, f.calls.Load())

		stats := p.Stats()
		require.Equal(t, 1, stats.Resident)
		require.EqualValues(t, 1, stats.Created)
		require.EqualValues(t, 1, stats.Reused)
	})

	t.Run("released handle goes to the suspended acquirer", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(1, f)

		first, err := p.Acquire(context.Background())
		require.NoError(t, err)

		got := make(chan *testConn, 1)
		go func() {
			c, acqErr := p.Acquire(context.Background())
			if acqErr == nil {
				got <- c
			}
		}()
		waitForWaiters(t, p, 1)

		p.Release(first)
		require.Same(t, first, <-got)
		require.EqualValues(t, 1, f.calls.Load())
		require.Equal(t, 0, p.Stats().Idle)
	})

	t.Run("suspended acquirers are served in arrival order", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(1, f)
		held, err := p.Acquire(context.Background())
		require.NoError(t, err)

		order := make(chan int, 2)
		for i := 0; i < 2; i++ {
			i := i
			go func() {
				c, acqErr := p.Acquire(context.Background())
				if acqErr != nil {
					return
				}
				order <- i
				p.Release(c)
			}()
			waitForWaiters(t, p, i+1)
		}
		p.Release(held)
		require.Equal(t, 0, <-order)
		require.Equal(t, 1, <-order)
	})

	t.Run("never exceeds capacity", func(t *testing.T) {
		f := &testFactory{delay: time.Millisecond}
		p := newTestPool(3, f)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, err := p.Acquire(context.Background())
				if err != nil {
					return
				}
				time.Sleep(time.Millisecond)
				p.Release(c)
			}()
		}
		wg.Wait()
		require.LessOrEqual(t, f.peak.Load(), int64(3))
		require.LessOrEqual(t, p.Stats().Resident, 3)
	})

	t.Run("factory failure frees the slot", func(t *testing.T) {
		f := &testFactory{err: errors.New("connection refused")}
		p := newTestPool(1, f)
		_, err := p.Acquire(context.Background())
		require.ErrorContains(t, err, "connection refused")
		require.Equal(t, 0, p.Stats().Resident)

		f.err = nil
		c, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NotNil(t, c)
	})

	t.Run("canceled wait returns context error", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(1, f)
		held, err := p.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = p.Acquire(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 0, p.Stats().Waiters)

		p.Release(held)
		require.Equal(t, 1, p.Stats().Idle)
	})
}

func TestPool_Discard(t *testing.T) {
	f := &testFactory{}
	p := newTestPool(1, f)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *testConn, 1)
	go func() {
		fresh, acqErr := p.Acquire(context.Background())
		if acqErr == nil {
			got <- fresh
		}
	}()
	waitForWaiters(t, p, 1)

	p.Discard(c)
	fresh := <-got
	require.NotSame(t, c, fresh)
	require.EqualValues(t, 2, f.calls.Load())
	require.EqualValues(t, 1, f.closed.Load())
	require.Equal(t, 1, p.Stats().Resident)
}

func TestPool_SetCapacity(t *testing.T) {
	t.Run("growing capacity wakes waiters", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(1, f)
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)

		got := make(chan *testConn, 1)
		go func() {
			c, acqErr := p.Acquire(context.Background())
			if acqErr == nil {
				got <- c
			}
		}()
		waitForWaiters(t, p, 1)

		p.SetCapacity(2)
		require.NotNil(t, <-got)
		require.Equal(t, 2, p.Stats().Resident)
	})

	t.Run("shrinking capacity trims on release", func(t *testing.T) {
		f := &testFactory{}
		p := newTestPool(2, f)
		c1, err := p.Acquire(context.Background())
		require.NoError(t, err)
		c2, err := p.Acquire(context.Background())
		require.NoError(t, err)

		p.SetCapacity(1)
		require.Equal(t, 2, p.Stats().Resident)

		p.Release(c1)
		require.EqualValues(t, 1, f.closed.Load())
		p.Release(c2)
		stats := p.Stats()
		require.Equal(t, 1, stats.Resident)
		require.Equal(t, 1, stats.Idle)
	})
}

func TestPool_ReapIdle(t *testing.T) {
	f := &testFactory{}
	p := newTestPool(2, f)
	now := time.Now()
	p.now = func() time.Time { return now }

	c1, _ := p.Acquire(context.Background())
	c2, _ := p.Acquire(context.Background())
	p.Release(c1)
	now = now.Add(time.Minute)
	p.Release(c2)

	require.Equal(t, 1, p.ReapIdle(30*time.Second))
	stats := p.Stats()
	require.Equal(t, 1, stats.Idle)
	require.Equal(t, 1, stats.Resident)
	require.EqualValues(t, 1, f.closed.Load())
}

func TestPool_Close(t *testing.T) {
	f := &testFactory{}
	p := newTestPool(1, f)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, acqErr := p.Acquire(context.Background())
		errs <- acqErr
	}()
	waitForWaiters(t, p, 1)

	p.Close()
	require.ErrorIs(t, <-errs, ErrClosed)

	p.Release(c)
	require.EqualValues(t, 1, f.closed.Load())
	require.Equal(t, 0, p.Stats().Resident)

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestPool_Corruption(t *testing.T) {
	var reported error
	prev := OnCorruption
	OnCorruption = func(err error) { reported = err }
	defer func() { OnCorruption = prev }()

	p := New[int](1, func(context.Context) (int, error) { return 1, nil })
	p.Discard(0)
	require.ErrorContains(t, reported, "negative")
}
