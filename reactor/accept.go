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
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
)

// Listener is an accepting, non-blocking socket bound to one port.
type Listener struct {
	Fd   int
	Port int
}

// Accept drains a listener's backlog until EAGAIN/EWOULDBLOCK, checking out
// a Record for each accepted connection and registering it with r. Pool
// exhaustion or a failed registration drops only that connection, and
// ECONNABORTED and EINTR are skipped; in each case the loop continues. Any
// other accept error is logged and returned, which ends the loop.
func Accept(r *Reactor, pool *connpool.Pool, l Listener, log *logger.Logger) error {
	for {
		fd, sa, err := unix.Accept4(l.Fd, unix.SOCK_NONBLOCK)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
				return nil
			case errors.Is(err, unix.ECONNABORTED), errors.Is(err, unix.EINTR):
				continue
			default:
				log.StdErr(1, "accept: listener fd=%d: %v", l.Fd, err)
				return err
			}
		}

		addr := sockaddrToAddr(sa)
		rec, err := pool.Checkout(fd, l.Port, addr)
		if err != nil {
			log.Warn(2, "accept: pool exhausted, dropping new connection from %v", addr)
			_ = unix.Close(fd)
			continue
		}

		if err := r.Add(fd, unix.EPOLLIN|unix.EPOLLRDHUP, rec); err != nil {
			log.StdErr(3, "accept: EpollCtl ADD fd=%d: %v", fd, err)
			_ = unix.Close(fd)
			pool.Release(rec)
			continue
		}

		log.Debug("accepted fd=%d seq=%d trace=%s remote=%v", fd, rec.Sequence, rec.TraceID, addr)
	}
}

func sockaddrToAddr(sa unix.Sockaddr) *unixAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &unixAddr{ip: v.Addr[:], port: v.Port}
	case *unix.SockaddrInet6:
		return &unixAddr{ip: v.Addr[:], port: v.Port}
	default:
		return nil
	}
}

// unixAddr is a minimal net.Addr so callers/logs/metrics can label a
// connection without pulling in a full net.Conn for an fd we manage by hand.
type unixAddr struct {
	ip   []byte
	port int
}

func (a *unixAddr) Network() string { return "tcp" }
func (a *unixAddr) String() string {
	if a == nil {
		return "<unknown>"
	}
	return ipString(a.ip) + ":" + strconv.Itoa(a.port)
}

func ipString(b []byte) string {
	if len(b) == 4 {
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." +
			strconv.Itoa(int(b[2])) + "." + strconv.Itoa(int(b[3]))
	}
	return "[ipv6]"
}
