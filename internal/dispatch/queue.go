// Package dispatch serializes calls to a quota-constrained capability. One
// worker loop executes tasks strictly in enqueue order and keeps consecutive
// dispatches at least a configured interval apart.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDrained rejects tasks that were still pending when the queue was drained.
var ErrDrained = errors.New("dispatch: queue drained")

// Task produces a typed result or an error.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome resolves the future returned by Enqueue.
type Outcome[T any] struct {
	Value T
	Err   error
}

type entry[T any] struct {
	ctx  context.Context
	task Task[T]
	done chan Outcome[T]
}

// Queue is a single-flight, minimum-interval FIFO scheduler. Multiple
// callers may enqueue concurrently; each receives its own future, resolved
// independently of the others. A task failure rejects only that task's
// future and never halts the loop.
type Queue[T any] struct {
	interval time.Duration
	onDepth  func(int)

	mu      sync.Mutex
	pending []entry[T]
	running bool

	// lastDone is touched only by the worker loop.
	lastDone time.Time
}

// New constructs a queue with the given minimum dispatch interval.
func New[T any](interval time.Duration) *Queue[T] {
	return &Queue[T]{interval: interval}
}

// OnDepth registers an observer invoked with the pending depth after every
// enqueue and pop. Used for gauge instrumentation; may be left unset.
func (q *Queue[T]) OnDepth(fn func(int)) {
	q.onDepth = fn
}

// Enqueue appends a task and returns a future for its outcome. Enqueueing
// onto an idle queue starts the worker loop; otherwise the task simply waits
// its turn.
func (q *Queue[T]) Enqueue(ctx context.Context, task Task[T]) <-chan Outcome[T] {
	done := make(chan Outcome[T], 1)
	q.mu.Lock()
	q.pending = append(q.pending, entry[T]{ctx: ctx, task: task, done: done})
	depth := len(q.pending)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()
	if q.onDepth != nil {
		q.onDepth(depth)
	}
	if start {
		go q.loop()
	}
	return done
}

// Len reports the number of tasks still waiting to start.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain rejects every pending, not-yet-started task with ErrDrained and
// resets the queue to idle. A task already executing runs to completion.
func (q *Queue[T]) Drain() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	if q.onDepth != nil {
		q.onDepth(0)
	}
	for _, e := range pending {
		e.done <- Outcome[T]{Err: ErrDrained}
	}
}

func (q *Queue[T]) loop() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		depth := len(q.pending)
		q.mu.Unlock()
		if q.onDepth != nil {
			q.onDepth(depth)
		}
		q.dispatch(e)
	}
}

func (q *Queue[T]) dispatch(e entry[T]) {
	if !q.lastDone.IsZero() {
		if wait := q.interval - time.Since(q.lastDone); wait > 0 {
			select {
			case <-time.After(wait):
			case <-e.ctx.Done():
				e.done <- Outcome[T]{Err: e.ctx.Err()}
				return
			}
		}
	}
	if err := e.ctx.Err(); err != nil {
		e.done <- Outcome[T]{Err: err}
		return
	}
	value, err := e.task(e.ctx)
	q.lastDone = time.Now()
	e.done <- Outcome[T]{Value: value, Err: err}
}
