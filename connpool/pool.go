/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package connpool provides a capacity-bounded pool of reusable handles that are created lazily
// by a factory. The capacity may be changed at runtime and suspended acquirers are served in FIFO order.
package connpool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrClosed is returned by Acquire after the pool has been closed.
var ErrClosed = errors.New("pool is closed")

// FatalExitCode is the process exit code used by the default corruption handler.
const FatalExitCode = 70

// OnCorruption is called when the pool detects that its bookkeeping is broken.
// The default handler prints the error to stderr and terminates the process.
var OnCorruption = func(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(FatalExitCode)
}

// Factory creates a new handle. It may block, for example while a network handshake completes.
type Factory[T any] func(ctx context.Context) (T, error)

// Opts represents options for the Pool.
type Opts[T any] struct {
	// Close is called for every handle that leaves the pool for good
	// (discarded, trimmed above capacity, reaped as idle or dropped on Close).
	Close func(h T)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Resident int
	Idle     int
	Capacity int
	Waiters  int
	Created  int64
	Reused   int64
}

type idleEntry[T any] struct {
	handle T
	since  time.Time
}

// grant is handed to a suspended acquirer: either a ready handle or a permission to create one.
type grant[T any] struct {
	handle T
	create bool
}

type waiter[T any] struct {
	ch   chan grant[T] // buffered(1), closed when the pool is closed
	done bool
}

// Pool is a capacity-bounded cache of reusable handles. It is safe for concurrent use.
//
// Resident counts idle handles, checked out handles and handles being created.
// It never exceeds the capacity as a result of Acquire.
type Pool[T any] struct {
	mu       sync.Mutex
	idle     []idleEntry[T] // stack, the most recently released handle is on top
	resident int
	capacity int
	waiters  *list.List // *waiter[T]
	closed   bool

	factory Factory[T]
	closeFn func(h T)
	now     func() time.Time

	created atomic.Int64
	reused  atomic.Int64
}

// New creates a new Pool with default options.
func New[T any](capacity int, factory Factory[T]) *Pool[T] {
	return NewWithOpts(capacity, factory, Opts[T]{})
}

// NewWithOpts creates a new Pool with the given options.
func NewWithOpts[T any](capacity int, factory Factory[T], opts Opts[T]) *Pool[T] {
	if capacity < 0 {
		capacity = 0
	}
	closeFn := opts.Close
	if closeFn == nil {
		closeFn = func(T) {}
	}
	return &Pool[T]{
		capacity: capacity,
		waiters:  list.New(),
		factory:  factory,
		closeFn:  closeFn,
		now:      time.Now,
	}
}

// Acquire returns an idle handle if there is one. Otherwise, if the resident count is below
// the capacity, it creates a new handle via the factory. Otherwise, it blocks until another caller
// releases or discards a handle, the capacity grows, ctx is done or the pool is closed.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.checkLocked()
		p.mu.Unlock()
		p.reused.Inc()
		return e.handle, nil
	}
	if p.resident < p.capacity {
		p.resident++
		p.mu.Unlock()
		return p.create(ctx)
	}
	w := &waiter[T]{ch: make(chan grant[T], 1)}
	el := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case g, ok := <-w.ch:
		if !ok {
			return zero, ErrClosed
		}
		if g.create {
			return p.create(ctx)
		}
		p.reused.Inc()
		return g.handle, nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	if !w.done {
		p.waiters.Remove(el)
		p.mu.Unlock()
		return zero, ctx.Err()
	}
	p.mu.Unlock()

	// A grant raced with cancellation: pass it on.
	if g, ok := <-w.ch; ok {
		if g.create {
			p.freeSlot()
		} else {
			p.Release(g.handle)
		}
	}
	return zero, ctx.Err()
}

func (p *Pool[T]) create(ctx context.Context) (T, error) {
	h, err := p.factory(ctx)
	if err != nil {
		p.freeSlot()
		var zero T
		return zero, fmt.Errorf("create pooled handle: %w", err)
	}
	p.created.Inc()
	return h, nil
}

func (p *Pool[T]) freeSlot() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resident--
	p.grantLocked()
	p.checkLocked()
}

// Release returns a checked out handle. The oldest suspended acquirer receives it directly.
// Without waiters the handle becomes idle, unless the pool is above its capacity
// (after SetCapacity decreased it), in which case the handle is closed.
func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	if front := p.waiters.Front(); front != nil && !p.closed {
		w := p.waiters.Remove(front).(*waiter[T])
		w.ch <- grant[T]{handle: h}
		w.done = true
		p.checkLocked()
		p.mu.Unlock()
		return
	}
	if p.closed || p.resident > p.capacity {
		p.resident--
		p.checkLocked()
		p.mu.Unlock()
		p.closeFn(h)
		return
	}
	p.idle = append(p.idle, idleEntry[T]{handle: h, since: p.now()})
	p.checkLocked()
	p.mu.Unlock()
}

// Discard drops a checked out handle that proved unusable and frees its slot.
func (p *Pool[T]) Discard(h T) {
	p.freeSlot()
	p.closeFn(h)
}

// SetCapacity changes the ceiling for future creation. Resident handles above the new capacity
// are not closed; they are trimmed when released. Growing the capacity lets suspended acquirers create handles.
func (p *Pool[T]) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = capacity
	p.grantLocked()
	p.checkLocked()
}

// Capacity returns the current capacity.
func (p *Pool[T]) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// ReapIdle closes idle handles that have not been used for longer than maxIdle
// and returns their number.
func (p *Pool[T]) ReapIdle(maxIdle time.Duration) int {
	p.mu.Lock()
	cutoff := p.now().Add(-maxIdle)
	var reaped []T
	kept := p.idle[:0]
	for _, e := range p.idle {
		if e.since.Before(cutoff) {
			reaped = append(reaped, e.handle)
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	p.resident -= len(reaped)
	p.grantLocked()
	p.checkLocked()
	p.mu.Unlock()

	for _, h := range reaped {
		p.closeFn(h)
	}
	return len(reaped)
}

// Stats returns a consistent snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Resident: p.resident,
		Idle:     len(p.idle),
		Capacity: p.capacity,
		Waiters:  p.waiters.Len(),
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
	}
}

// Close closes idle handles and wakes suspended acquirers with ErrClosed.
// Checked out handles are closed when they are released.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter[T])
		w.done = true
		close(w.ch)
	}
	p.waiters.Init()
	idle := p.idle
	p.idle = nil
	p.resident -= len(idle)
	p.checkLocked()
	p.mu.Unlock()

	for _, e := range idle {
		p.closeFn(e.handle)
	}
}

// grantLocked serves suspended acquirers from idle handles first, then with creation permissions.
func (p *Pool[T]) grantLocked() {
	for p.waiters.Len() > 0 && !p.closed {
		var g grant[T]
		if n := len(p.idle); n > 0 {
			g.handle = p.idle[n-1].handle
			p.idle = p.idle[:n-1]
		} else if p.resident < p.capacity {
			p.resident++
			g.create = true
		} else {
			return
		}
		w := p.waiters.Remove(p.waiters.Front()).(*waiter[T])
		w.ch <- g
		w.done = true
	}
}

func (p *Pool[T]) checkLocked() {
	switch {
	case p.resident < 0:
		OnCorruption(fmt.Errorf("pool resident count is negative: %d", p.resident))
	case len(p.idle) > p.resident:
		OnCorruption(fmt.Errorf("pool holds %d idle handles but only %d are resident", len(p.idle), p.resident))
	case len(p.idle) > 0 && p.waiters.Len() > 0:
		OnCorruption(fmt.Errorf("pool holds %d idle handles while %d acquirers are suspended",
			len(p.idle), p.waiters.Len()))
	}
}
