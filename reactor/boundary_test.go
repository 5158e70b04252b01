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

package reactor_test

import (
	"time"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
	"github.com/sabouaram/xmoon/logger/level"
	"github.com/sabouaram/xmoon/packet"
	"github.com/sabouaram/xmoon/reactor"
)

// newPair returns a connected, non-blocking AF_UNIX SOCK_STREAM pair: ours
// is wired into a freshly checked-out Record, theirs is the raw peer fd a
// test feeds bytes through. This exercises the same read-syscall path a
// TCP connection would without needing a real listener.
func newPair(pool *connpool.Pool) (*connpool.Record, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).ToNot(HaveOccurred())

	ExpectWithOffset(1, unix.SetNonblock(fds[0], true)).To(Succeed())

	rec, err := pool.Checkout(fds[0], 9002, nil)
	Expect(err).ToNot(HaveOccurred())

	return rec, fds[1]
}

func frame(body []byte) []byte {
	h := packet.Header{TotalLen: uint16(packet.HeaderLen + len(body))}
	return append(packet.Encode(h), body...)
}

var _ = Describe("Read handler boundary scenarios", func() {
	var (
		pool *connpool.Pool
		log  *logger.Logger
	)

	BeforeEach(func() {
		pool = connpool.NewPool(4, time.Minute)
		log = logger.New(level.NilLevel)
	})

	It("reassembles a frame delivered one byte at a time", func() {
		r, err := reactor.New(8)
		Expect(err).ToNot(HaveOccurred())

		rec, peer := newPair(pool)
		defer unix.Close(peer)

		wire := frame([]byte("hello"))

		var got []reactor.Frame
		dispatch := func(f reactor.Frame) { got = append(got, f) }

		for _, b := range wire {
			_, werr := unix.Write(peer, []byte{b})
			Expect(werr).ToNot(HaveOccurred())
			reactor.Read(r, rec, pool, dispatch, log)
		}

		Expect(got).To(HaveLen(1))
		Expect(got[0].Body).To(Equal([]byte("hello")))
	})

	It("dispatches a header-only frame with an empty body", func() {
		r, err := reactor.New(8)
		Expect(err).ToNot(HaveOccurred())

		rec, peer := newPair(pool)
		defer unix.Close(peer)

		h := packet.Header{TotalLen: packet.HeaderLen, MsgCode: 99}
		_, werr := unix.Write(peer, packet.Encode(h))
		Expect(werr).ToNot(HaveOccurred())

		var got []reactor.Frame
		reactor.Read(r, rec, pool, func(f reactor.Frame) { got = append(got, f) }, log)

		Expect(got).To(HaveLen(1))
		Expect(got[0].Header.MsgCode).To(Equal(uint16(99)))
		Expect(got[0].Body).To(BeEmpty())
	})

	It("discards an oversize frame and resynchronizes on the next header", func() {
		r, err := reactor.New(8)
		Expect(err).ToNot(HaveOccurred())

		rec, peer := newPair(pool)
		defer unix.Close(peer)

		bad := packet.Header{TotalLen: packet.MaxPacketLen + 1}
		good := frame([]byte("ok"))

		_, werr := unix.Write(peer, packet.Encode(bad))
		Expect(werr).ToNot(HaveOccurred())

		var got []reactor.Frame
		dispatch := func(f reactor.Frame) { got = append(got, f) }
		reactor.Read(r, rec, pool, dispatch, log)
		Expect(got).To(BeEmpty())
		Expect(rec.State).To(Equal(connpool.StateHeaderInit))

		_, werr = unix.Write(peer, good)
		Expect(werr).ToNot(HaveOccurred())
		reactor.Read(r, rec, pool, dispatch, log)

		Expect(got).To(HaveLen(1))
		Expect(got[0].Body).To(Equal([]byte("ok")))
	})

	It("releases the record to the recycle list on abrupt peer close", func() {
		r, err := reactor.New(8)
		Expect(err).ToNot(HaveOccurred())

		rec, peer := newPair(pool)
		seq := rec.Sequence

		Expect(unix.Close(peer)).To(Succeed())

		reactor.Read(r, rec, pool, func(reactor.Frame) {}, log)

		Expect(pool.RecycleLen()).To(Equal(1))
		// Release keeps Sequence; only a later Checkout reissues the record.
		Expect(connpool.IsStale(rec, seq)).To(BeFalse())
	})
})

var _ = Describe("Pool exhaustion", func() {
	It("soft-fails Accept-adjacent checkout without touching other connections", func() {
		pool := connpool.NewPool(1, time.Minute)

		first, err := pool.Checkout(10, 9002, nil)
		Expect(err).ToNot(HaveOccurred())

		_, err = pool.Checkout(11, 9002, nil)
		Expect(err).To(MatchError(connpool.ErrPoolExhausted))

		// the first connection is unaffected by the failed second checkout
		Expect(first.Fd).To(Equal(10))
	})
})
