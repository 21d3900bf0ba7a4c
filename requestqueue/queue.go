// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package requestqueue implements a single-worker, latest-request-wins queue.
//
// A Queue owns one goroutine.  At most one request is being processed and at
// most one is waiting; submitting while another request waits replaces the
// waiting one.  In-flight work is never aborted, so every request that starts
// processing is either dispatched or reported as failed.
package requestqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Handler computes and delivers the result of a request.
type Handler[Req, Res any] interface {
	// Process computes the result for req.  It runs on the queue's worker
	// goroutine, so it may take as long as it needs.
	Process(ctx context.Context, req Req) (Res, error)
	// Dispatch delivers res to whoever sent req.  It is called synchronously
	// on the worker, after Process succeeds, and before the next request
	// starts processing.
	Dispatch(req Req, res Res)
}

// Notifier may be implemented by a Handler that wants to hear about requests
// that will never be dispatched.
type Notifier[Req any] interface {
	// Superseded is called when req is replaced by a newer request before it
	// started processing.
	Superseded(req Req)
	// Failed is called when processing req returned an error or panicked, or
	// when req was dropped because the queue closed.
	Failed(req Req, err error)
}

// State describes what a queue is doing.
type State int

const (
	// Idle means no request is waiting or being processed.
	Idle State = iota
	// Pending means a request is waiting and the worker has not picked it up.
	Pending
	// Processing means the worker is computing or dispatching a result.  A
	// further request may be waiting.
	Processing
)

var stateNames = [...]string{"idle", "pending", "processing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrClosed is returned by Submit after Close, and passed to
// Notifier.Failed for a request dropped by Close.
var ErrClosed = errors.E(errors.Precondition, "request queue is closed")

// Queue is a latest-request-wins work queue with a single worker.
type Queue[Req, Res any] struct {
	name     string
	ctx      context.Context
	handler  Handler[Req, Res]
	notifier Notifier[Req]
	metrics  queueMetrics

	mu         sync.Mutex
	cond       *sync.Cond
	pending    Req
	hasPending bool
	processing bool
	closed     bool
	started    bool
	done       chan struct{}
}

// New creates a queue and starts its worker.  name labels log messages and
// metrics.  ctx is passed to every Process call; the queue does not stop
// when ctx is canceled, use Close for that.
func New[Req, Res any](ctx context.Context, name string, h Handler[Req, Res]) *Queue[Req, Res] {
	q := newQueue(ctx, name, h)
	q.start()
	return q
}

func newQueue[Req, Res any](ctx context.Context, name string, h Handler[Req, Res]) *Queue[Req, Res] {
	q := &Queue[Req, Res]{
		name:    name,
		ctx:     ctx,
		handler: h,
		metrics: newQueueMetrics(name),
		done:    make(chan struct{}),
	}
	q.notifier, _ = h.(Notifier[Req])
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue[Req, Res]) start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		log.Panicf("requestqueue %s: started twice", q.name)
	}
	q.started = true
	q.mu.Unlock()
	go q.loop()
}

// Name returns the name the queue was created with.
func (q *Queue[Req, Res]) Name() string { return q.name }

// Submit hands req to the queue and returns immediately.  A request that is
// still waiting is replaced by req.  If a request is being processed, req
// waits for it to finish.
func (q *Queue[Req, Res]) Submit(req Req) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	old, superseded := q.pending, q.hasPending
	q.pending, q.hasPending = req, true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.metrics.submitted.Inc()
	if superseded {
		log.Debug.Printf("requestqueue %s: request superseded", q.name)
		q.metrics.superseded.Inc()
		if q.notifier != nil {
			q.notifier.Superseded(old)
		}
	}
	return nil
}

// State returns the queue's current state.
func (q *Queue[Req, Res]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.processing:
		return Processing
	case q.hasPending:
		return Pending
	}
	return Idle
}

// WaitIdle blocks until the queue has neither a waiting nor an in-flight
// request, or ctx is done.
func (q *Queue[Req, Res]) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()
	q.mu.Lock()
	defer q.mu.Unlock()
	for (q.processing || q.hasPending) && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Close stops the queue.  A request being processed runs to completion and
// is dispatched; a waiting request is dropped.  Close blocks until the worker
// exits.  Calling Close more than once is harmless.
func (q *Queue[Req, Res]) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	dropped, hasDropped := q.pending, q.hasPending
	var zero Req
	q.pending, q.hasPending = zero, false
	started := q.started
	q.cond.Broadcast()
	q.mu.Unlock()

	if hasDropped && q.notifier != nil {
		q.notifier.Failed(dropped, ErrClosed)
	}
	if started {
		<-q.done
	} else {
		close(q.done)
	}
	return nil
}

func (q *Queue[Req, Res]) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for !q.hasPending && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		req := q.pending
		var zero Req
		q.pending, q.hasPending = zero, false
		q.processing = true
		q.mu.Unlock()

		q.run(req)

		q.mu.Lock()
		q.processing = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// run processes and dispatches one request.  Errors and panics are logged
// and reported to the notifier; they never stop the worker.
func (q *Queue[Req, Res]) run(req Req) {
	start := time.Now()
	err := q.guard("process", func() error {
		res, err := q.handler.Process(q.ctx, req)
		if err != nil {
			return err
		}
		return q.guard("dispatch", func() error {
			q.handler.Dispatch(req, res)
			return nil
		})
	})
	q.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error.Printf("requestqueue %s: %v", q.name, err)
		q.metrics.failed.Inc()
		if q.notifier != nil {
			q.guard("notify", func() error {
				q.notifier.Failed(req, err)
				return nil
			})
		}
		return
	}
	q.metrics.processed.Inc()
}

func (q *Queue[Req, Res]) guard(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug.Printf("requestqueue %s: %s panicked: %v\n%s", q.name, what, r, debug.Stack())
			err = errors.E(fmt.Sprintf("%s panicked: %v", what, r))
		}
	}()
	return fn()
}
