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

// Package worker implements the fixed-size worker thread pool that
// application frame handlers run on, off the reactor's goroutine.
package worker

import (
	"sync"
	"time"

	libatm "github.com/sabouaram/xmoon/atomic"
	"github.com/sabouaram/xmoon/logger"
)

// Job is one unit of application work, typically "process this Frame".
type Job func()

// slot is one pool thread. It owns its own condition variable rather than
// sharing one across the pool, so a submitter can wake exactly the thread it
// chose off the idle queue instead of every idle thread racing to grab a
// shared queue's head.
type slot struct {
	mu   sync.Mutex
	cond *sync.Cond
	job  Job
	quit bool
}

// Pool is a fixed-size set of goroutines, the Go analogue of XMNThreadPool.
type Pool struct {
	slots []*slot

	idleMu sync.Mutex
	idle   []*slot
	idleOK *sync.Cond

	satAt        libatm.Value[time.Time]
	satThreshold time.Duration
	log          *logger.Logger

	wg sync.WaitGroup
}

// New starts size worker goroutines, each parked on its own cond waiting
// for a Job. satThreshold is stored on the Pool but nothing reads it: no
// watchdog goroutine runs, and Submit logs the saturation warning as soon
// as every thread is busy, whatever satThreshold is.
func New(size int, satThreshold time.Duration, log *logger.Logger) *Pool {
	p := &Pool{
		satThreshold: satThreshold,
		log:          log,
	}
	p.idleOK = sync.NewCond(&p.idleMu)
	p.satAt = libatm.NewValue[time.Time]()

	p.slots = make([]*slot, size)
	for i := range p.slots {
		s := &slot{}
		s.cond = sync.NewCond(&s.mu)
		p.slots[i] = s
		p.idle = append(p.idle, s)

		p.wg.Add(1)
		go p.run(s)
	}

	return p
}

func (p *Pool) run(s *slot) {
	defer p.wg.Done()
	for {
		s.mu.Lock()
		for s.job == nil && !s.quit {
			s.cond.Wait()
		}
		if s.quit && s.job == nil {
			s.mu.Unlock()
			return
		}
		job := s.job
		s.job = nil
		s.mu.Unlock()

		job()

		p.idleMu.Lock()
		p.idle = append(p.idle, s)
		if !p.satAt.Load().IsZero() {
			p.satAt.Store(time.Time{})
		}
		p.idleOK.Signal()
		p.idleMu.Unlock()
	}
}

// Submit blocks until a thread is idle, assigns it job and signals exactly
// that thread's cond, the Go analogue of Call() after
// PutInRecvDataQueue_Signal. If every thread is already busy, the moment is
// timestamped, matching allthreadswork_lasttime_, and one warning is logged;
// no further warning is logged until a thread has gone idle again.
func (p *Pool) Submit(job Job) {
	p.idleMu.Lock()
	for len(p.idle) == 0 {
		if p.satAt.Load().IsZero() {
			p.satAt.Store(time.Now())
			if p.log != nil {
				p.log.Warn(1, "worker pool saturated: all %d threads busy", len(p.slots))
			}
		}
		p.idleOK.Wait()
	}

	s := p.idle[0]
	p.idle = p.idle[1:]
	p.idleMu.Unlock()

	s.mu.Lock()
	s.job = job
	s.cond.Signal()
	s.mu.Unlock()
}

// BusyCount returns how many threads currently hold a Job.
func (p *Pool) BusyCount() int {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()
	return len(p.slots) - len(p.idle)
}

// SaturatedSince returns the zero time if the pool is not currently
// saturated, or the moment it became saturated otherwise; a caller can
// compare time.Since of it against its own threshold.
func (p *Pool) SaturatedSince() time.Time {
	return p.satAt.Load()
}

// Stop signals every thread to exit once its current job (if any)
// completes, and waits for all of them to return.
func (p *Pool) Stop() {
	for _, s := range p.slots {
		s.mu.Lock()
		s.quit = true
		s.cond.Signal()
		s.mu.Unlock()
	}
	p.wg.Wait()
}
