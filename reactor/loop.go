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
	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
)

// errorOrHangup is the flag combination that, per EpollProcessEvents,
// routes an EPOLLOUT-ready event to the peer-closed disposition instead of
// to the normal write handler.
const errorOrHangup = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP

// Run is the worker process's main event loop: it blocks in Wait, then
// dispatches each ready fd to the acceptor, read handler or write handler.
// It returns when quitting reports true, after one last non-blocking drain
// so events already delivered by the kernel are not lost.
func Run(r *Reactor, listeners []Listener, pool *connpool.Pool, dispatch Dispatch, quitting func() bool, log *logger.Logger) error {
	byFd := make(map[int]Listener, len(listeners))
	for _, l := range listeners {
		byFd[l.Fd] = l
	}

	for {
		timeout := -1
		if quitting() {
			timeout = 0
		}

		events, err := r.Wait(timeout)
		if err == ErrBlockingWaitNoEvents {
			continue
		}
		if err != nil {
			return err
		}

		for _, ev := range events {
			if l, ok := byFd[ev.Fd]; ok {
				if err := Accept(r, pool, l, log); err != nil {
					log.StdErr(1, "acceptor on listener port=%d stopped: %v", l.Port, err)
				}
				continue
			}

			rec := ev.Record
			if rec == nil {
				continue
			}

			if ev.Events&unix.EPOLLIN != 0 {
				Read(r, rec, pool, dispatch, log)
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				if ev.Events&errorOrHangup != 0 {
					WriteReadyPeerClosed(r, rec, log)
				} else {
					WriteReady(r, rec, log)
				}
			}
		}

		if quitting() && len(events) == 0 {
			return nil
		}
	}
}
