/*
 * MIT License
 *
 * Copyright (c) 2026 xmoon contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

//go:build linux

package reactor

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sabouaram/xmoon/connpool"
)

// Envelope is a heap-allocated outbound message. Sequence is stamped at
// enqueue time from the target Record; the sender thread compares it
// against the Record's live Sequence before writing a single byte, so an
// envelope queued for a connection that has since been recycled is dropped
// instead of written to whatever new connection reused the fd.
type Envelope struct {
	Record   *connpool.Record
	Sequence uint64
	Data     []byte
}

// SendQueue is the FIFO queue of outbound Envelopes behind a mutex and a
// counting semaphore. golang.org/x/sync/semaphore.Weighted is used here not
// to bound concurrency (its usual role) but as a plain POSIX-style counting
// semaphore: Release(1) signals "one item available", Acquire(ctx, 1)
// consumes that signal, which is exactly sem_post()/sem_wait()'s contract.
type SendQueue struct {
	mu    sync.Mutex
	items []Envelope
	sem   *semaphore.Weighted
}

// NewSendQueue builds an empty send queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{sem: semaphore.NewWeighted(math.MaxInt64)}
}

// Push enqueues e and wakes the sender thread, the Go analogue of
// PutInSendDataQueue's mutex-protected push + sem_post.
func (q *SendQueue) Push(e Envelope) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.sem.Release(1)
}

// Pop blocks until an Envelope is available or ctx is done, the analogue of
// sem_wait() (with EINTR retried internally by Acquire) followed by
// PutOutSendDataFromQueue.
func (q *SendQueue) Pop(ctx context.Context) (Envelope, bool) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return Envelope{}, false
	}
	q.mu.Lock()
	e := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	return e, true
}

// Drain empties the queue without blocking, used during shutdown to free
// any envelopes still queued, the analogue of FreeSendDataQueue.
func (q *SendQueue) Drain() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the current queue depth, for metrics sampling.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
