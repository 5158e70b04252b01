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

// Package connpool implements the fixed-size connection record pool and its
// deferred recycle list: a free list for O(1) checkout/release, and a
// two-stage recycle list that holds closed records for a minimum dwell time
// before they can be checked out again, so a stale epoll event referencing a
// reused fd cannot be mistaken for traffic on the new connection.
package connpool

import (
	"net"
	"sync"
	"time"

	"github.com/sabouaram/xmoon/packet"
	"github.com/rs/xid"
)

// RecvState is the framing state machine's progress for the connection
// currently bound to a Record. States follow packet header/body bounds.
type RecvState int

const (
	// StateHeaderInit expects a fresh header at the start of recv buffer.
	StateHeaderInit RecvState = iota
	// StateHeaderPartial has a partially received header.
	StateHeaderPartial
	// StateBodyInit has a complete header and a body buffer sized from it,
	// with no body bytes received yet.
	StateBodyInit
	// StateBodyPartial has a partially received body.
	StateBodyPartial
)

// Record is one slot of the connection pool. Its lifetime spans possibly
// many TCP connections: checkout binds it to a live fd and stamps a new
// Sequence; release unbinds it and defers it to the recycle list.
type Record struct {
	// Next links free Records into the pool's free list. Owned by Pool;
	// callers must not touch it.
	Next *Record

	// Fd is the connection's file descriptor. Release sets it to -1 (and
	// RemoteAddr to nil), and it stays -1 through the recycle list and back
	// in the free list; a Record that has never been checked out holds 0.
	Fd int

	// Sequence is stamped by Pool.Checkout and is the sole staleness guard:
	// any in-flight envelope or queued epoll event whose embedded sequence
	// does not match the Record's current Sequence refers to a connection
	// that no longer exists and must be dropped.
	Sequence uint64

	// TraceID distinguishes this Record's current lifetime in logs and
	// metrics without exposing the raw Sequence counter.
	TraceID xid.ID

	// ListenerPort is the port the accepting listener was bound to.
	ListenerPort int

	RemoteAddr net.Addr

	// LogicMutex serializes the sender thread and the EPOLLOUT write
	// handler over this Record's send-side state. The read handler and the
	// worker-pool callback do not take it.
	LogicMutex sync.Mutex

	// --- read-side framing state ---

	State      RecvState
	HeaderBuf  [packet.HeaderLen]byte
	HeaderFill int
	Header     packet.Header
	Body       []byte
	BodyFill   int

	// --- write-side partial-write continuation ---

	SendCursor     int
	SendArmed      bool
	SendPending    []byte
	ThrowEpollSend int
}

// ResetFraming returns the framing state machine to StateHeaderInit,
// discarding any partially received header or body. Used both after a
// complete frame is dispatched and after an invalid/oversize frame forces a
// resync.
func (r *Record) ResetFraming() {
	r.State = StateHeaderInit
	r.HeaderFill = 0
	r.Body = nil
	r.BodyFill = 0
}

// bind attaches the Record to a freshly accepted connection, stamping a new
// Sequence and resetting all per-connection state.
func (r *Record) bind(fd int, port int, addr net.Addr, seq uint64) {
	r.Fd = fd
	r.ListenerPort = port
	r.RemoteAddr = addr
	r.Sequence = seq
	r.TraceID = xid.New()
	r.SendCursor = 0
	r.SendArmed = false
	r.SendPending = nil
	r.ThrowEpollSend = 0
	r.ResetFraming()
}

// unbind clears connection-identifying fields while preserving Sequence,
// which stays fixed at whatever value it held when the connection died
// until Checkout assigns the Record a new one; this is what makes "sequence
// still matches" a valid staleness test for anything enqueued moments ago.
func (r *Record) unbind() {
	r.Fd = -1
	r.RemoteAddr = nil
}
