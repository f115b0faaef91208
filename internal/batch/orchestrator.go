/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package batch admits batches of downstream requests into the deadline queue,
// runs the workers that dispatch queued items through the connection pool,
// and assembles per-item results within the batch timeout.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/acronis/go-batchproxy/connpool"
	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/internal/api"
	"github.com/acronis/go-batchproxy/internal/dispatch"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/queue"
)

// Dispatcher performs a downstream request using a pooled connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn *dispatch.Conn, req api.Request) (*dispatch.Response, error)
}

// MetricsCollector receives the outcome of every reported item.
type MetricsCollector interface {
	IncItems(outcome Outcome)
}

type disabledMetrics struct{}

func (disabledMetrics) IncItems(Outcome) {}

// Opts represents options for the Orchestrator.
type Opts struct {
	// Workers is the number of goroutines taking items from the queue. DefaultWorkers is used if zero.
	Workers int
	// RetryTransient enables a single retry ahead of newer items for transient dispatch failures.
	RetryTransient bool
	Metrics        MetricsCollector
}

// Capacity is the pair of capacities that are changed in lockstep.
type Capacity struct {
	Queue int `json:"queue_capacity"`
	Pool  int `json:"pool_capacity"`
}

type task struct {
	req       api.Request
	done      chan Result // buffered(1), receives exactly one result
	retried   bool
	logger    log.FieldLogger
	requestID string
}

// Orchestrator is the batch admission and execution pipeline.
// It owns the deadline queue and closes the connection pool when it stops.
type Orchestrator struct {
	queue          *queue.Queue[*task]
	pool           *connpool.Pool[*dispatch.Conn]
	dispatcher     Dispatcher
	logger         log.FieldLogger
	workers        int
	retryTransient bool
	metrics        MetricsCollector
	now            func() time.Time
	capacityMu     sync.Mutex
	closeOnce      sync.Once
}

// New creates a new Orchestrator with an empty queue of the given capacity.
func New(
	queueCapacity int, pool *connpool.Pool[*dispatch.Conn], dispatcher Dispatcher, logger log.FieldLogger, opts Opts,
) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	return &Orchestrator{
		queue:          queue.New[*task](queueCapacity),
		pool:           pool,
		dispatcher:     dispatcher,
		logger:         logger,
		workers:        workers,
		retryTransient: opts.RetryTransient,
		metrics:        metrics,
		now:            time.Now,
	}
}

// Submit admits the requests and waits for their results up to ttl since the call.
// Requests that do not fit into the queue get backpressure results immediately.
// Accepted requests whose results are not ready by the deadline get timeout results;
// late results produced by the workers are dropped.
// Results are returned in the order of reqs.
func (o *Orchestrator) Submit(ctx context.Context, ttl time.Duration, reqs []api.Request) []Result {
	if ttl < 0 {
		ttl = 0
	}
	arrival := o.now()
	deadline := arrival.Add(ttl)

	logger := middleware.GetLoggerFromContext(ctx)
	if logger == nil {
		logger = o.logger
	}
	requestID := middleware.GetRequestIDFromContext(ctx)

	tasks := make([]*task, len(reqs))
	for i := range reqs {
		tasks[i] = &task{
			req:       reqs[i],
			done:      make(chan Result, 1),
			logger:    logger.With(log.String("item_id", reqs[i].ID)),
			requestID: requestID,
		}
	}

	// Queued items share the batch deadline, so workers never dispatch an item Submit has given up on.
	adm := o.queue.EnqueueManyAt(arrival, ttl, tasks)
	results := make([]Result, len(reqs))
	for i := adm.Accepted; i < len(tasks); i++ {
		results[i] = backpressureResult(reqs[i].ID, adm.Capacity, adm.FreeSpace)
	}
	if rejected := len(tasks) - adm.Accepted; rejected > 0 {
		logger.Warn("batch items rejected by full queue",
			log.Int("rejected", rejected), log.Int("queue_capacity", adm.Capacity))
	}

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	for i := 0; i < adm.Accepted; i++ {
		if waitCtx.Err() != nil {
			results[i] = timeoutResult(reqs[i].ID)
			continue
		}
		select {
		case results[i] = <-tasks[i].done:
		case <-waitCtx.Done():
			results[i] = timeoutResult(reqs[i].ID)
		}
	}

	for i := range results {
		o.metrics.IncItems(results[i].Outcome)
	}
	return results
}

// Run starts the workers and blocks until ctx is done and all of them return.
// Then it closes the orchestrator. It implements service.Worker.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("starting batch workers", log.Int("workers", o.workers))

	var wg sync.WaitGroup
	wg.Add(o.workers)
	for i := 0; i < o.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				item, err := o.queue.Dequeue(ctx)
				if err != nil {
					return
				}
				o.process(ctx, item)
			}
		}()
	}
	wg.Wait()

	o.Close()
	o.logger.Info("batch workers stopped")
	return nil
}

// Close stops admission, reports the queued items as timed out and closes the connection pool.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		remaining := o.queue.Close()
		for _, item := range remaining {
			o.complete(item.Value, timeoutResult(item.Value.req.ID))
		}
		o.pool.Close()
		if len(remaining) > 0 {
			o.logger.Warn("queued items dropped on shutdown", log.Int("items", len(remaining)))
		}
	})
}

// SetCapacity changes the queue and pool capacities together.
// Resident items and handles are never evicted.
func (o *Orchestrator) SetCapacity(c Capacity) error {
	if c.Queue < 0 || c.Pool < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	o.capacityMu.Lock()
	defer o.capacityMu.Unlock()
	o.queue.SetCapacity(c.Queue)
	o.pool.SetCapacity(c.Pool)
	o.logger.Info("capacity changed", log.Int("queue_capacity", c.Queue), log.Int("pool_capacity", c.Pool))
	return nil
}

// Capacity returns the current queue and pool capacities.
func (o *Orchestrator) Capacity() Capacity {
	o.capacityMu.Lock()
	defer o.capacityMu.Unlock()
	return Capacity{Queue: o.queue.Capacity(), Pool: o.pool.Capacity()}
}

// QueueStats returns a snapshot of the queue.
func (o *Orchestrator) QueueStats() queue.Stats {
	return o.queue.Stats()
}

// PoolStats returns a snapshot of the connection pool.
func (o *Orchestrator) PoolStats() connpool.Stats {
	return o.pool.Stats()
}

func (o *Orchestrator) process(ctx context.Context, item queue.Item[*task]) {
	t := item.Value
	if item.Expired(o.now()) {
		t.logger.Debug("item deadline passed while queued")
		o.complete(t, timeoutResult(t.req.ID))
		return
	}

	dctx, cancel := context.WithDeadline(ctx, item.Deadline)
	defer cancel()
	dctx = middleware.NewContextWithLogger(dctx, t.logger)
	if t.requestID != "" {
		dctx = middleware.NewContextWithRequestID(dctx, t.requestID)
	}

	conn, err := o.pool.Acquire(dctx)
	if err != nil {
		if dctx.Err() != nil || errors.Is(err, connpool.ErrClosed) {
			o.complete(t, timeoutResult(t.req.ID))
			return
		}
		t.logger.Error("failed to acquire downstream connection", log.Error(err))
		o.complete(t, downstreamErrorResult(t.req.ID, err))
		return
	}

	resp, err := o.dispatch(dctx, conn, t.req)
	if err != nil {
		o.pool.Discard(conn)
		if dctx.Err() != nil {
			o.complete(t, timeoutResult(t.req.ID))
			return
		}
		if o.retryTransient && !t.retried && dispatch.IsTransient(err) && !item.Expired(o.now()) {
			t.retried = true
			t.logger.Warn("transient downstream failure, item is requeued", log.Error(err))
			o.queue.PushFront(item)
			return
		}
		t.logger.Warn("downstream request failed", log.Error(err))
		o.complete(t, downstreamErrorResult(t.req.ID, err))
		return
	}
	o.pool.Release(conn)
	o.complete(t, successResult(t.req.ID, resp.StatusCode, resp.Body))
}

func (o *Orchestrator) dispatch(ctx context.Context, conn *dispatch.Conn, req api.Request) (resp *dispatch.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			o.logger.Error(fmt.Sprintf("Panic: %+v", p), log.String("stack", string(stack)))
			err = fmt.Errorf("dispatch panicked: %v", p)
		}
	}()
	return o.dispatcher.Dispatch(ctx, conn, req)
}

func (o *Orchestrator) complete(t *task, r Result) {
	t.done <- r
}
