// Package chanqueue provides the buffered-channel Queue/Dispatcher pair
// shared by solcore's Bridge drivers: jobs are enqueued onto a channel
// and drained by a single goroutine, giving each driver one serialized
// point to invoke callbacks from.
package chanqueue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/solclient-go/solcore"
)

// stopDrainTimeout bounds how long Stop waits for queued work to drain
// before giving up and stopping the dispatcher anyway.
const stopDrainTimeout = 2 * time.Second

// Queue is a buffered-channel solcore.Queue that acts as its own
// Dispatcher: one goroutine drains the channel, running each job in
// enqueue order.
type Queue struct {
	jobs    chan func()
	done    chan struct{}
	started atomic.Bool
	depth   atomic.Int64
}

// New returns a Queue with the given channel buffer depth.
func New(buffer int) *Queue {
	return &Queue{jobs: make(chan func(), buffer), done: make(chan struct{})}
}

// Enqueue schedules fn on the dispatcher goroutine, or returns ErrNoMem
// when the buffer is full.
func (q *Queue) Enqueue(fn func()) error {
	q.depth.Add(1)
	select {
	case q.jobs <- fn:
		return nil
	default:
		q.depth.Add(-1)
		return solcore.ErrNoMem
	}
}

// Dispatcher returns q itself.
func (q *Queue) Dispatcher() solcore.Dispatcher { return q }

// Depth reports the number of jobs queued or in flight.
func (q *Queue) Depth() int { return int(q.depth.Load()) }

// Start launches the dispatcher goroutine. Idempotent.
func (q *Queue) Start() error {
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}
	go q.run()
	return nil
}

func (q *Queue) run() {
	for {
		select {
		case fn := <-q.jobs:
			fn()
			q.depth.Add(-1)
		case <-q.done:
			return
		}
	}
}

// Stop waits for queued work to drain, bounded by ctx and
// stopDrainTimeout, then stops the dispatcher goroutine.
func (q *Queue) Stop(ctx context.Context) error {
	if !q.started.CompareAndSwap(true, false) {
		return nil
	}
	deadline := time.NewTimer(stopDrainTimeout)
	defer deadline.Stop()
	for q.Depth() > 0 {
		select {
		case <-ctx.Done():
			close(q.done)
			return ctx.Err()
		case <-deadline.C:
			close(q.done)
			return solcore.ErrTimeout
		case <-time.After(time.Millisecond):
		}
	}
	close(q.done)
	return nil
}
