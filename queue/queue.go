/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package queue provides a bounded FIFO of deadline-stamped items.
// Consumers block in Dequeue until an item is available, and producers hand
// items directly to the oldest suspended consumer.
package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrClosed is returned by Dequeue after the queue has been closed.
var ErrClosed = errors.New("queue is closed")

// FatalExitCode is the process exit code used by the default corruption handler.
const FatalExitCode = 70

// OnCorruption is called when the queue detects that its internal state is broken.
// The default handler prints the error to stderr and terminates the process.
// It is a variable so tests can observe the call instead of exiting.
var OnCorruption = func(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(FatalExitCode)
}

// Item is a queued value together with its admission timestamps.
type Item[T any] struct {
	Value    T
	Arrival  time.Time
	Deadline time.Time
}

// Expired reports whether the deadline of the item has passed at the given moment.
func (it Item[T]) Expired(now time.Time) bool {
	return now.After(it.Deadline)
}

// Admission is the result of a single EnqueueMany call.
// The first Accepted values were queued; the rest were rejected.
type Admission struct {
	Accepted  int
	Capacity  int
	FreeSpace int
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Length    int
	Capacity  int
	FreeSpace int
	Waiters   int
}

type waiter[T any] struct {
	ch   chan Item[T] // buffered(1), closed when the queue is closed
	done bool         // set under lock once ch received an item or was closed
}

// Queue is a capacity-bounded FIFO of items. It is safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	items    *list.List // Item[T]
	waiters  *list.List // *waiter[T]
	capacity int
	closed   bool
	now      func() time.Time
}

// New creates a new empty queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		items:    list.New(),
		waiters:  list.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

// EnqueueMany admits as many of the values as the free space allows, in order,
// stamping all of them with the current time as arrival and arrival+ttl as deadline.
// Admitted items are handed to suspended consumers oldest first.
func (q *Queue[T]) EnqueueMany(ttl time.Duration, values []T) Admission {
	return q.EnqueueManyAt(q.now(), ttl, values)
}

// EnqueueManyAt is like EnqueueMany but uses the passed arrival time.
// Admission.FreeSpace is the free space right after admission, before any item is handed to a consumer.
func (q *Queue[T]) EnqueueManyAt(arrival time.Time, ttl time.Duration, values []T) Admission {
	if ttl < 0 {
		ttl = 0
	}
	deadline := arrival.Add(ttl)

	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := 0
	if !q.closed {
		accepted = q.capacity - q.items.Len()
		if accepted < 0 {
			accepted = 0
		}
		if accepted > len(values) {
			accepted = len(values)
		}
	}
	for _, v := range values[:accepted] {
		q.items.PushBack(Item[T]{Value: v, Arrival: arrival, Deadline: deadline})
	}
	adm := Admission{Accepted: accepted, Capacity: q.capacity, FreeSpace: q.capacity - q.items.Len()}
	q.handOffLocked()
	q.checkLocked()

	return adm
}

// PushFront puts an item back at the head of the queue regardless of capacity.
// The item keeps its original deadline.
func (q *Queue[T]) PushFront(item Item[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushFront(item)
	q.handOffLocked()
	q.checkLocked()
}

// Dequeue removes and returns the head item. If the queue is empty, it blocks
// until an item is handed over, ctx is done or the queue is closed.
// Suspended callers are served in the order they started waiting.
func (q *Queue[T]) Dequeue(ctx context.Context) (Item[T], error) {
	var zero Item[T]

	q.mu.Lock()
	if front := q.items.Front(); front != nil {
		item := q.items.Remove(front).(Item[T])
		q.checkLocked()
		q.mu.Unlock()
		return item, nil
	}
	if q.closed {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	w := &waiter[T]{ch: make(chan Item[T], 1)}
	el := q.waiters.PushBack(w)
	q.mu.Unlock()

	select {
	case item, ok := <-w.ch:
		if !ok {
			return zero, ErrClosed
		}
		return item, nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !w.done {
		q.waiters.Remove(el)
		return zero, ctx.Err()
	}
	// An item was handed over concurrently with cancellation: return it to the head.
	if item, ok := <-w.ch; ok {
		q.items.PushFront(item)
		q.handOffLocked()
		q.checkLocked()
	}
	return zero, ctx.Err()
}

// SetCapacity changes the capacity. Queued items are never evicted,
// so the free space may become negative until consumers catch up.
func (q *Queue[T]) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	q.mu.Lock()
	q.capacity = capacity
	q.mu.Unlock()
}

// Capacity returns the current capacity.
func (q *Queue[T]) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// FreeSpace returns capacity minus length. It is negative after the capacity
// was reduced below the length or after PushFront overflowed the queue.
func (q *Queue[T]) FreeSpace() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.items.Len()
}

// Stats returns a consistent snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Length:    q.items.Len(),
		Capacity:  q.capacity,
		FreeSpace: q.capacity - q.items.Len(),
		Waiters:   q.waiters.Len(),
	}
}

// Close rejects further admissions, wakes all suspended consumers with ErrClosed
// and returns the items that were still queued.
func (q *Queue[T]) Close() []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for e := q.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter[T])
		w.done = true
		close(w.ch)
	}
	q.waiters.Init()

	remaining := make([]Item[T], 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		remaining = append(remaining, e.Value.(Item[T]))
	}
	q.items.Init()
	return remaining
}

// handOffLocked moves head items to the oldest waiters, one item per waiter.
func (q *Queue[T]) handOffLocked() {
	for q.items.Len() > 0 && q.waiters.Len() > 0 {
		w := q.waiters.Remove(q.waiters.Front()).(*waiter[T])
		w.ch <- q.items.Remove(q.items.Front()).(Item[T])
		w.done = true
	}
}

func (q *Queue[T]) checkLocked() {
	if q.items.Len() > 0 && q.waiters.Len() > 0 {
		OnCorruption(fmt.Errorf("queue holds %d items while %d consumers are suspended",
			q.items.Len(), q.waiters.Len()))
	}
}
