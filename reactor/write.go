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
	"errors"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
)

// sendOutcome is the disposition MsgSend's return value maps to: full
// write, partial write, peer closed, would-block, retry, or hard error.
type sendOutcome int

const (
	sendComplete sendOutcome = iota
	sendPartial
	sendPeerClosed
	sendWouldBlock
	sendRetry
	sendError
)

// trySend writes as much of data[cursor:] as the socket will currently
// accept and classifies the result. EINTR is the only outcome the caller
// should retry immediately; every other outcome ends this attempt.
func trySend(fd int, data []byte, cursor int) (int, sendOutcome) {
	n, err := unix.Write(fd, data[cursor:])
	switch {
	case err == nil && n == len(data)-cursor:
		return n, sendComplete
	case err == nil && n > 0:
		return n, sendPartial
	case err == nil && n == 0:
		return 0, sendPeerClosed
	case errors.Is(err, unix.EAGAIN):
		return 0, sendWouldBlock
	case errors.Is(err, unix.EINTR):
		return 0, sendRetry
	default:
		return 0, sendError
	}
}

// SendLoop is the dedicated sender thread: it pops Envelopes off q and
// applies the disposition table from spec.md §4.6. It stops when ctx is
// done and leaves any envelopes still queued in q; nothing in the shutdown
// path calls q.Drain().
func SendLoop(ctx context.Context, r *Reactor, q *SendQueue, pool *connpool.Pool, log *logger.Logger) {
	for {
		env, ok := q.Pop(ctx)
		if !ok {
			return
		}
		applyDisposition(r, env, pool, log)
	}
}

func applyDisposition(r *Reactor, env Envelope, pool *connpool.Pool, log *logger.Logger) {
	rec := env.Record

	rec.LogicMutex.Lock()
	defer rec.LogicMutex.Unlock()

	if connpool.IsStale(rec, env.Sequence) {
		return
	}

	if rec.ThrowEpollSend > 0 {
		// A write-readiness event is already armed for an earlier partial
		// write; this envelope is dropped rather than raced against it from
		// the sender thread.
		return
	}

	cursor := 0
	for {
		n, outcome := trySend(rec.Fd, env.Data, cursor)
		switch outcome {
		case sendRetry:
			continue
		case sendComplete:
			return
		case sendPartial:
			cursor += n
			rec.SendCursor = cursor
			rec.SendPending = env.Data
			armWrite(r, rec, log)
			return
		case sendPeerClosed:
			return
		case sendWouldBlock:
			rec.SendCursor = cursor
			rec.SendPending = env.Data
			armWrite(r, rec, log)
			return
		case sendError:
			log.StdErr(1, "send failed fd=%d seq=%d: dropping envelope", rec.Fd, rec.Sequence)
			return
		}
	}
}

func armWrite(r *Reactor, rec *connpool.Record, log *logger.Logger) {
	if err := r.Modify(rec.Fd, unix.EPOLLOUT, CombineOr); err != nil {
		log.StdErr(2, "arm EPOLLOUT fd=%d: %v", rec.Fd, err)
		return
	}
	rec.SendArmed = true
	rec.ThrowEpollSend++
}

// WriteReady resumes a write previously left partial, driven by an
// EPOLLOUT-ready event, using the buffer and cursor applyDisposition stashed
// on rec before arming the write.
func WriteReady(r *Reactor, rec *connpool.Record, log *logger.Logger) {
	rec.LogicMutex.Lock()
	defer rec.LogicMutex.Unlock()

	if !rec.SendArmed {
		return
	}

	n, outcome := trySend(rec.Fd, rec.SendPending, rec.SendCursor)
	switch outcome {
	case sendComplete, sendPeerClosed, sendError:
		rec.SendPending = nil
		disarmWrite(r, rec, log)
	case sendPartial:
		rec.SendCursor += n
	case sendWouldBlock, sendRetry:
		// stay armed, epoll will fire again
	}
}

// WriteReadyPeerClosed is called when EPOLLOUT arrives combined with
// EPOLLERR/EPOLLHUP/EPOLLRDHUP: the original implementation decrements the
// armed-writer counter without attempting to send in that case.
func WriteReadyPeerClosed(r *Reactor, rec *connpool.Record, log *logger.Logger) {
	rec.LogicMutex.Lock()
	defer rec.LogicMutex.Unlock()
	disarmWrite(r, rec, log)
}

func disarmWrite(r *Reactor, rec *connpool.Record, log *logger.Logger) {
	if rec.ThrowEpollSend > 0 {
		rec.ThrowEpollSend--
	}
	rec.SendArmed = false
	if err := r.Modify(rec.Fd, unix.EPOLLOUT, CombineAndNot); err != nil {
		log.StdErr(3, "disarm EPOLLOUT fd=%d: %v", rec.Fd, err)
	}
}
