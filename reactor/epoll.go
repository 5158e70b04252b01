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

// Package reactor is the readiness I/O event loop: one epoll instance per
// worker process, driving the acceptor, read and write handlers.
package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/atomic"
	"github.com/sabouaram/xmoon/connpool"
)

// CombineMode selects how Modify folds a new event flag into the fd's
// already-registered interest set, mirroring EpollOperationEvent's bcaction
// parameter.
type CombineMode int

const (
	// CombineOr ORs the new flag into the existing set (e.g. arm EPOLLOUT
	// without losing EPOLLIN).
	CombineOr CombineMode = iota
	// CombineAndNot clears the new flag from the existing set (e.g.
	// disarm EPOLLOUT once a deferred write completes).
	CombineAndNot
	// CombineReplace discards the existing set and uses the new flag
	// verbatim.
	CombineReplace
)

// MaxEvents bounds a single EpollWait batch, matching
// XMN_EPOLL_WAIT_MAX_EVENTS.
const MaxEvents = 512

// ErrBlockingWaitNoEvents signals the invariant violation the original
// implementation flagged as return code -3: EpollWait was called with an
// infinite timeout and still returned zero ready events.
var ErrBlockingWaitNoEvents = errors.New("reactor: blocking wait returned no events")

// Reactor wraps a single epoll instance and the fd -> *connpool.Record
// registry needed to recover a Record from a ready fd. The registries are
// atomic.MapTyped rather than plain maps so that a future multi-threaded
// reactor (or a diagnostics goroutine ranging over live fds) doesn't need a
// separate mutex bolted on top.
type Reactor struct {
	epfd   int
	events []unix.EpollEvent
	byFd   atomic.MapTyped[int32, *connpool.Record]
	flags  atomic.MapTyped[int32, uint32]
}

// New creates an epoll instance, the Go analogue of
// epoll_create(worker_connection_count_). hint has no effect: EpollCreate1
// takes no size, and the event buffer always holds MaxEvents entries.
func New(hint int) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: EpollCreate1: %w", err)
	}
	if hint <= 0 {
		hint = MaxEvents
	}
	return &Reactor{
		epfd:   epfd,
		events: make([]unix.EpollEvent, MaxEvents),
		byFd:   atomic.NewMapTyped[int32, *connpool.Record](),
		flags:  atomic.NewMapTyped[int32, uint32](),
	}, nil
}

// Close releases the epoll fd.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// Add registers fd for the given event flags and associates rec with it so
// that Wait can hand the Record back on readiness. This is
// EpollOperationEvent(fd, EPOLL_CTL_ADD, flag, 0, pconnsockinfo).
func (r *Reactor) Add(fd int, flags uint32, rec *connpool.Record) error {
	ev := unix.EpollEvent{Events: flags, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: EpollCtl ADD fd=%d: %w", fd, err)
	}
	r.byFd.Store(int32(fd), rec)
	r.flags.Store(int32(fd), flags)
	return nil
}

// Modify folds flag into fd's registered interest set according to mode and
// re-applies it via EPOLL_CTL_MOD, the Go analogue of
// EpollOperationEvent(fd, EPOLL_CTL_MOD, flag, bcaction, pconnsockinfo).
func (r *Reactor) Modify(fd int, flag uint32, mode CombineMode) error {
	cur, _ := r.flags.Load(int32(fd))

	var next uint32
	switch mode {
	case CombineOr:
		next = cur | flag
	case CombineAndNot:
		next = cur &^ flag
	case CombineReplace:
		next = flag
	default:
		return fmt.Errorf("reactor: unknown combine mode %d", mode)
	}

	ev := unix.EpollEvent{Events: next, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: EpollCtl MOD fd=%d: %w", fd, err)
	}
	r.flags.Store(int32(fd), next)
	return nil
}

// Remove unregisters fd. Safe to call after the fd has already been closed;
// EBADF/ENOENT are swallowed since the kernel drops epoll registrations on
// close automatically and double-removal is benign bookkeeping.
func (r *Reactor) Remove(fd int) error {
	r.byFd.Delete(int32(fd))
	r.flags.Delete(int32(fd))

	ev := unix.EpollEvent{}
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, &ev)
	if err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("reactor: EpollCtl DEL fd=%d: %w", fd, err)
	}
	return nil
}

// RecordFor returns the Record registered for fd, if any.
func (r *Reactor) RecordFor(fd int) (*connpool.Record, bool) {
	return r.byFd.Load(int32(fd))
}

// Event is one ready fd reported by Wait.
type Event struct {
	Fd     int
	Events uint32
	Record *connpool.Record
}

// Wait blocks for ready events up to timeoutMillis (-1 = block
// indefinitely, 0 = poll without blocking), matching
// EpollProcessEvents(timer)'s return-code table: EINTR is swallowed and
// reported as zero events (benign), timeoutMillis == -1 with zero events
// ready is the invariant violation ErrBlockingWaitNoEvents, any other
// negative errno is returned verbatim.
func (r *Reactor) Wait(timeoutMillis int) ([]Event, error) {
	n, err := unix.EpollWait(r.epfd, r.events, timeoutMillis)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: EpollWait: %w", err)
	}

	if n == 0 {
		if timeoutMillis == -1 {
			return nil, ErrBlockingWaitNoEvents
		}
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		fd := r.events[i].Fd
		rec, _ := r.byFd.Load(fd)
		out = append(out, Event{Fd: int(fd), Events: r.events[i].Events, Record: rec})
	}
	return out, nil
}
