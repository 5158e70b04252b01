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

package connpool

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolExhausted is returned by Checkout when the free list is empty. The
// acceptor handler treats this as a soft failure: it closes the just-accepted
// fd and keeps serving existing connections, it does not stop the reactor.
var ErrPoolExhausted = errors.New("connpool: no free record available")

// DefaultRecycleWait is the default minimum dwell time a closed Record
// spends in the recycle list before it can rejoin the free list, matching
// the original RecyConnSockInfoWaitTime default of 60 seconds.
const DefaultRecycleWait = 60 * time.Second

type recycleEntry struct {
	rec      *Record
	closedAt time.Time
}

// Pool is a fixed-size set of Records with O(1) checkout/release via a
// singly linked free list, plus a deferred recycle list.
type Pool struct {
	waitTime time.Duration
	seq      atomic.Uint64

	storage []Record

	freeMu sync.Mutex
	free   *Record

	recyMu  sync.Mutex
	recycle []recycleEntry
}

// NewPool allocates size Records up front (no growth at runtime, matching
// the original fixed-size worker_connections pool) and threads them onto the
// free list. waitTime <= 0 falls back to DefaultRecycleWait.
func NewPool(size int, waitTime time.Duration) *Pool {
	if waitTime <= 0 {
		waitTime = DefaultRecycleWait
	}

	p := &Pool{
		waitTime: waitTime,
		storage:  make([]Record, size),
	}

	for i := range p.storage {
		p.storage[i].Next = p.free
		p.free = &p.storage[i]
	}

	return p
}

// Size returns the fixed capacity of the pool.
func (p *Pool) Size() int {
	return len(p.storage)
}

// Checkout removes a Record from the free list, binds it to fd/port/addr and
// stamps it with a new, strictly increasing Sequence. Returns
// ErrPoolExhausted if no Record is free.
func (p *Pool) Checkout(fd int, port int, addr net.Addr) (*Record, error) {
	p.freeMu.Lock()
	r := p.free
	if r == nil {
		p.freeMu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.free = r.Next
	r.Next = nil
	p.freeMu.Unlock()

	r.bind(fd, port, addr, p.seq.Add(1))
	return r, nil
}

// Release unbinds r from its connection and defers it to the recycle list
// with the current time, rather than returning it to the free list
// immediately. It does not close r.Fd, but it resets r.Fd to -1, so callers
// close the fd themselves before calling Release.
func (p *Pool) Release(r *Record) {
	r.unbind()

	p.recyMu.Lock()
	p.recycle = append(p.recycle, recycleEntry{rec: r, closedAt: time.Now()})
	p.recyMu.Unlock()
}

// DrainRecycle moves every recycle-list entry whose dwell time has elapsed
// as of now back onto the free list, and returns how many were moved. It is
// meant to be called periodically by a dedicated recycler goroutine, the Go
// analogue of ConnSockInfoRecycleThread.
func (p *Pool) DrainRecycle(now time.Time) int {
	p.recyMu.Lock()
	kept := p.recycle[:0]
	var ready []*Record
	for _, e := range p.recycle {
		if now.Sub(e.closedAt) >= p.waitTime {
			ready = append(ready, e.rec)
		} else {
			kept = append(kept, e)
		}
	}
	p.recycle = kept
	p.recyMu.Unlock()

	if len(ready) == 0 {
		return 0
	}

	p.freeMu.Lock()
	for _, r := range ready {
		r.Next = p.free
		p.free = r
	}
	p.freeMu.Unlock()

	return len(ready)
}

// RecycleLen reports how many Records are currently waiting out their dwell
// time; exported for the metrics collector.
func (p *Pool) RecycleLen() int {
	p.recyMu.Lock()
	defer p.recyMu.Unlock()
	return len(p.recycle)
}

// FreeLen reports how many Records are immediately available for Checkout;
// exported for the metrics collector.
func (p *Pool) FreeLen() int {
	p.freeMu.Lock()
	defer p.freeMu.Unlock()
	n := 0
	for r := p.free; r != nil; r = r.Next {
		n++
	}
	return n
}

// BoundLen is Size minus the Records currently free or recycling: the
// number of Records bound to a live connection.
func (p *Pool) BoundLen() int {
	return p.Size() - p.FreeLen() - p.RecycleLen()
}

// IsStale reports whether seq no longer matches r's current Sequence, i.e.
// whether a message or event carrying seq refers to a connection that has
// since been released and possibly reissued.
func IsStale(r *Record, seq uint64) bool {
	return r.Sequence != seq
}

// Recycler runs DrainRecycle on interval until stop is closed. It is started
// once per worker process by cmd/xmoon-server's runWorker.
func Recycler(p *Pool, interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			p.DrainRecycle(now)
		}
	}
}
