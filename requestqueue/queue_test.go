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
package requestqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu         sync.Mutex
	dispatched []int
	superseded []int
	failed     map[int]error

	// block, if set, makes Process wait for a value on release after sending
	// on started, for requests in block.
	block   map[int]bool
	started chan int
	release chan struct{}
	fail    map[int]string
}

func newRecorder() *recorder {
	return &recorder{
		failed:  make(map[int]error),
		block:   make(map[int]bool),
		fail:    make(map[int]string),
		started: make(chan int, 10),
		release: make(chan struct{}),
	}
}

func (r *recorder) Process(ctx context.Context, req int) (string, error) {
	if r.block[req] {
		r.started <- req
		<-r.release
	}
	switch r.fail[req] {
	case "error":
		return "", fmt.Errorf("request %d failed", req)
	case "panic":
		panic(fmt.Sprintf("request %d", req))
	}
	return fmt.Sprintf("result %d", req), nil
}

func (r *recorder) Dispatch(req int, res string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, req)
}

func (r *recorder) Superseded(req int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superseded = append(r.superseded, req)
}

func (r *recorder) Failed(req int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[req] = err
}

func (r *recorder) snapshot() (dispatched, superseded []int, failed map[int]error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed = make(map[int]error)
	for k, v := range r.failed {
		failed[k] = v
	}
	return append([]int(nil), r.dispatched...), append([]int(nil), r.superseded...), failed
}

func waitIdle(t *testing.T, q *Queue[int, string]) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
}

func TestLatestWinsBeforeStart(t *testing.T) {
	r := newRecorder()
	q := newQueue[int, string](context.Background(), "before-start", r)
	require.NoError(t, q.Submit(1))
	assert.Equal(t, Pending, q.State())
	require.NoError(t, q.Submit(2))
	q.start()
	waitIdle(t, q)
	assert.Equal(t, Idle, q.State())
	require.NoError(t, q.Close())

	dispatched, superseded, failed := r.snapshot()
	assert.Equal(t, []int{2}, dispatched)
	assert.Equal(t, []int{1}, superseded)
	assert.Empty(t, failed)
}

func TestLatestWinsDuringProcessing(t *testing.T) {
	r := newRecorder()
	r.block[1] = true
	q := New[int, string](context.Background(), "during-processing", r)
	require.NoError(t, q.Submit(1))
	assert.Equal(t, 1, <-r.started)
	assert.Equal(t, Processing, q.State())
	require.NoError(t, q.Submit(2))
	require.NoError(t, q.Submit(3))
	assert.Equal(t, Processing, q.State())
	close(r.release)
	waitIdle(t, q)
	require.NoError(t, q.Close())

	dispatched, superseded, _ := r.snapshot()
	// The in-flight request completes; only the newest waiting one follows.
	assert.Equal(t, []int{1, 3}, dispatched)
	assert.Equal(t, []int{2}, superseded)
}

func TestFailureDoesNotStopQueue(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			r := newRecorder()
			r.fail[1] = mode
			q := New[int, string](context.Background(), "failure-"+mode, r)
			require.NoError(t, q.Submit(1))
			waitIdle(t, q)
			require.NoError(t, q.Submit(2))
			waitIdle(t, q)
			require.NoError(t, q.Close())

			dispatched, _, failed := r.snapshot()
			assert.Equal(t, []int{2}, dispatched)
			require.Contains(t, failed, 1)
			assert.Contains(t, failed[1].Error(), "request 1")
		})
	}
}

func TestCloseDropsPending(t *testing.T) {
	r := newRecorder()
	r.block[1] = true
	q := New[int, string](context.Background(), "close", r)
	require.NoError(t, q.Submit(1))
	assert.Equal(t, 1, <-r.started)
	require.NoError(t, q.Submit(2))

	closed := make(chan error)
	go func() { closed <- q.Close() }()
	for deadline := time.Now().Add(10 * time.Second); ; {
		if _, _, failed := r.snapshot(); failed[2] == ErrClosed {
			break
		}
		require.True(t, time.Now().Before(deadline), "pending request was not dropped")
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, ErrClosed, q.Submit(3))

	close(r.release)
	require.NoError(t, <-closed)
	require.NoError(t, q.Close())

	dispatched, _, failed := r.snapshot()
	assert.Equal(t, []int{1}, dispatched)
	assert.Len(t, failed, 1)
}

type plainHandler struct {
	mu   sync.Mutex
	seen []int
}

func (h *plainHandler) Process(_ context.Context, req int) (int, error) { return req * 10, nil }

func (h *plainHandler) Dispatch(req, res int) {
	h.mu.Lock()
	h.seen = append(h.seen, res)
	h.mu.Unlock()
}

func TestHandlerWithoutNotifier(t *testing.T) {
	h := &plainHandler{}
	q := newQueue[int, int](context.Background(), "plain", h)
	require.NoError(t, q.Submit(1))
	require.NoError(t, q.Submit(2))
	q.start()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
	require.NoError(t, q.Close())
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []int{20}, h.seen)
}

func TestCloseUnstarted(t *testing.T) {
	r := newRecorder()
	q := newQueue[int, string](context.Background(), "unstarted", r)
	require.NoError(t, q.Submit(1))
	require.NoError(t, q.Close())
	_, _, failed := r.snapshot()
	assert.Equal(t, ErrClosed, failed[1])
}
