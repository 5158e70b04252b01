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

// Package metrics exposes the connection pool, worker pool and send queue as
// a single prometheus.Collector, pulled on demand rather than pushed, the
// same on-Collect sampling shape the conns-map collectors in this codebase's
// ancestry use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/worker"
)

// SendQueueStats is the minimal view Collector needs out of a send queue;
// reactor.SendQueue satisfies it; metrics does not import reactor.
type SendQueueStats interface {
	Len() int
}

// Collector reports pool, worker and send-queue gauges for a single worker
// process. Register one per process with a "worker" const label.
type Collector struct {
	pool  *connpool.Pool
	pool2 *worker.Pool
	queue SendQueueStats

	free      *prometheus.Desc
	recycling *prometheus.Desc
	bound     *prometheus.Desc
	busy      *prometheus.Desc
	satSecs   *prometheus.Desc
	queueLen  *prometheus.Desc
}

// New builds a Collector sampling p, wp and q at Collect time. q may be nil
// if the send queue is not wired for a given worker (e.g. while testing the
// pool in isolation).
func New(p *connpool.Pool, wp *worker.Pool, q SendQueueStats, constLabels prometheus.Labels) *Collector {
	return &Collector{
		pool:  p,
		pool2: wp,
		queue: q,

		free:      prometheus.NewDesc("xmoon_pool_free_records", "Connection records currently on the free list.", nil, constLabels),
		recycling: prometheus.NewDesc("xmoon_pool_recycling_records", "Connection records in the deferred recycle list.", nil, constLabels),
		bound:     prometheus.NewDesc("xmoon_pool_bound_records", "Connection records currently bound to a live socket.", nil, constLabels),
		busy:      prometheus.NewDesc("xmoon_worker_busy_threads", "Worker pool threads currently executing a job.", nil, constLabels),
		satSecs:   prometheus.NewDesc("xmoon_worker_saturated_seconds", "Seconds since the worker pool last became fully busy, 0 if not currently saturated.", nil, constLabels),
		queueLen:  prometheus.NewDesc("xmoon_send_queue_depth", "Envelopes currently queued for the send loop.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.free
	ch <- c.recycling
	ch <- c.bound
	ch <- c.busy
	ch <- c.satSecs
	ch <- c.queueLen
}

// Collect implements prometheus.Collector, sampling every gauge fresh on
// each scrape rather than maintaining running counters.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(c.pool.FreeLen()))
	ch <- prometheus.MustNewConstMetric(c.recycling, prometheus.GaugeValue, float64(c.pool.RecycleLen()))
	ch <- prometheus.MustNewConstMetric(c.bound, prometheus.GaugeValue, float64(c.pool.BoundLen()))

	ch <- prometheus.MustNewConstMetric(c.busy, prometheus.GaugeValue, float64(c.pool2.BusyCount()))

	satSecs := 0.0
	if since := c.pool2.SaturatedSince(); !since.IsZero() {
		satSecs = time.Since(since).Seconds()
	}
	ch <- prometheus.MustNewConstMetric(c.satSecs, prometheus.GaugeValue, satSecs)

	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(c.queue.Len()))
	}
}
