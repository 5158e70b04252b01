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
	"errors"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
	"github.com/sabouaram/xmoon/packet"
)

// Frame is a complete, validated frame handed to the worker pool. Sequence
// is copied from the Record at the moment the frame completed, so the
// worker pool (and the send path, for any reply) can detect a connection
// that has since been recycled.
type Frame struct {
	Record   *connpool.Record
	Sequence uint64
	Header   packet.Header
	Body     []byte
}

// Dispatch receives a completed Frame for application processing. The core
// read path never blocks on it; it is expected to hand off to the worker
// pool's Submit.
type Dispatch func(Frame)

// readScratch is the size of the recv buffer each Read call declares on its
// own stack; nothing holds onto that buffer past the call.
const readScratch = 4096

// Read reads fd until EAGAIN or a short read, feeding every byte through
// rec's framing state machine. A peer close (n == 0) or hard error closes
// the connection and releases rec to the pool's recycle list; EAGAIN ends
// this call and EINTR retries the read, neither being treated as an error.
func Read(r *Reactor, rec *connpool.Record, pool *connpool.Pool, dispatch Dispatch, log *logger.Logger) {
	var buf [readScratch]byte

	for {
		n, err := unix.Read(rec.Fd, buf[:])
		if n > 0 {
			feed(rec, buf[:n], dispatch, log)
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			closeConn(r, rec, pool, log)
			return
		}
		if n == 0 {
			closeConn(r, rec, pool, log)
			return
		}
		if n < len(buf) {
			// Short read with no error: level-triggered epoll will fire
			// again if more is actually pending, so stop here instead of
			// busy-looping on a guaranteed-future EAGAIN.
			return
		}
	}
}

func closeConn(r *Reactor, rec *connpool.Record, pool *connpool.Pool, log *logger.Logger) {
	log.Debug("closing fd=%d seq=%d trace=%s", rec.Fd, rec.Sequence, rec.TraceID)
	_ = r.Remove(rec.Fd)
	_ = unix.Close(rec.Fd)
	pool.Release(rec)
}

// feed runs the received bytes through the header/body state machine
// described by spec.md §4.5. The header and body branches keep a running
// fill count (HeaderFill, BodyFill) and take only the full length minus
// that count from each receive, so bytes consumed by earlier receives are
// never counted twice; the original implementation's double-subtraction on
// partial receives is deliberately not reproduced here.
func feed(rec *connpool.Record, data []byte, dispatch Dispatch, log *logger.Logger) {
	for len(data) > 0 {
		switch rec.State {
		case connpool.StateHeaderInit, connpool.StateHeaderPartial:
			need := packet.HeaderLen - rec.HeaderFill
			take := min(need, len(data))
			copy(rec.HeaderBuf[rec.HeaderFill:], data[:take])
			rec.HeaderFill += take
			data = data[take:]

			if rec.HeaderFill < packet.HeaderLen {
				rec.State = connpool.StateHeaderPartial
				continue
			}

			h, _ := packet.DecodeHeader(rec.HeaderBuf[:])
			if !h.Valid() {
				log.Warn(1, "discarding out-of-range frame total_len=%d fd=%d", h.TotalLen, rec.Fd)
				rec.ResetFraming()
				continue
			}
			rec.Header = h
			if h.BodyLen() == 0 {
				dispatch(Frame{Record: rec, Sequence: rec.Sequence, Header: h})
				rec.ResetFraming()
				continue
			}
			rec.Body = make([]byte, h.BodyLen())
			rec.BodyFill = 0
			rec.State = connpool.StateBodyInit
			continue

		case connpool.StateBodyInit, connpool.StateBodyPartial:
			need := len(rec.Body) - rec.BodyFill
			take := min(need, len(data))
			copy(rec.Body[rec.BodyFill:], data[:take])
			rec.BodyFill += take
			data = data[take:]

			if rec.BodyFill < len(rec.Body) {
				rec.State = connpool.StateBodyPartial
				continue
			}

			dispatch(Frame{Record: rec, Sequence: rec.Sequence, Header: rec.Header, Body: rec.Body})
			rec.ResetFraming()
			continue
		}
	}
}
