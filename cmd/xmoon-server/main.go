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

// Command xmoon-server is the process entrypoint: it loads configuration
// from the environment, then either forks the configured number of worker
// processes (the master) or runs the accept/read/write event loop on
// inherited listening sockets (a worker), matching XMNSocket's top-level
// Init -> Fork -> EpollInit -> EpollProcessEvents sequence.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/xmoon/config"
	"github.com/sabouaram/xmoon/connpool"
	"github.com/sabouaram/xmoon/logger"
	"github.com/sabouaram/xmoon/metrics"
	"github.com/sabouaram/xmoon/reactor"
	"github.com/sabouaram/xmoon/supervisor"
	"github.com/sabouaram/xmoon/worker"
)

// xmoonEnvPrefix keys pull configuration out of the process environment,
// e.g. XMOON_ListenPortCount, XMOON_ListenPort0 (the part after the prefix
// is passed to config.Load unchanged, so it must match its key spelling),
// matching config.Load's map[string]string contract without inventing a
// second config format.
const xmoonEnvPrefix = "XMOON_"

func loadConfigFromEnv() (config.Config, error) {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, xmoonEnvPrefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimPrefix(parts[0], xmoonEnvPrefix)
		m[key] = parts[1]
	}
	return config.Load(m)
}

func main() {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "xmoon: configuration error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if cfg.LogFile != "" {
		if err := log.AddFileHook(cfg.LogFile); err != nil {
			log.StdErr(1, "attach log file %q: %v", cfg.LogFile, err)
		}
	}

	if idx, isWorker := supervisor.WorkerIndex(); isWorker {
		runWorker(cfg, log, idx)
		return
	}

	runMaster(cfg, log)
}

// runMaster opens the listening sockets and forks the worker processes,
// blocking until every child has exited.
func runMaster(cfg config.Config, log *logger.Logger) {
	listeners, err := supervisor.OpenListeners(cfg.ListenPorts)
	if err != nil {
		log.Fatal(1, "open listeners: %v", err)
		os.Exit(1)
	}

	sup := supervisor.New(cfg, log)
	log.Info(0, "starting %d worker process(es) across %d listener(s)", cfg.WorkerProcesses, len(listeners))
	if err := sup.ForkWorkers(listeners); err != nil {
		log.Fatal(2, "fork workers: %v", err)
		os.Exit(1)
	}
}

// runWorker runs the accept/read/write event loop for one forked process,
// reconstructing its listening sockets from the inherited fds (3, 4, ... in
// the order the master opened them) rather than calling listen() itself.
func runWorker(cfg config.Config, log *logger.Logger, idx int) {
	listeners, err := inheritedListeners(cfg.ListenPorts)
	if err != nil {
		log.Fatal(3, "worker %d: reconstruct listeners: %v", idx, err)
		os.Exit(1)
	}

	pool := connpool.NewPool(cfg.WorkerConnections, cfg.RecycleWaitTime)
	wp := worker.New(cfg.WorkerPoolSize, 5*time.Second, log)
	defer wp.Stop()

	r, err := reactor.New(cfg.WorkerConnections)
	if err != nil {
		log.Fatal(4, "worker %d: reactor init: %v", idx, err)
		os.Exit(1)
	}
	defer r.Close()

	rlisteners := make([]reactor.Listener, len(listeners))
	for i, l := range listeners {
		rawConn, err := l.SyscallConn()
		if err != nil {
			log.Fatal(5, "worker %d: listener syscall conn: %v", idx, err)
			os.Exit(1)
		}
		var fd int
		var addErr error
		_ = rawConn.Control(func(p uintptr) {
			fd = int(p)
			addErr = r.Add(fd, unix.EPOLLIN, nil)
		})
		if addErr != nil {
			log.Fatal(6, "worker %d: register listener: %v", idx, addErr)
			os.Exit(1)
		}
		rlisteners[i] = reactor.Listener{Fd: fd, Port: cfg.ListenPorts[i]}
	}

	queue := reactor.NewSendQueue()

	sup := supervisor.New(cfg, log)
	sup.WatchSignals()

	stop := make(chan struct{})
	go connpool.Recycler(pool, cfg.RecycleWaitTime, stop)

	sendCtx, cancelSend := context.WithCancel(context.Background())
	go reactor.SendLoop(sendCtx, r, queue, pool, log)

	if idx == 0 {
		collector := metrics.New(pool, wp, queue, prometheus.Labels{"worker": strconv.Itoa(idx)})
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			_ = http.ListenAndServe("127.0.0.1:9105", mux)
		}()
	}

	dispatch := func(f reactor.Frame) {
		wp.Submit(func() {
			handleFrame(f, queue, log)
		})
	}

	err = reactor.Run(r, rlisteners, pool, dispatch, sup.Quitting, log)
	close(stop)
	cancelSend()
	if err != nil {
		log.Fatal(7, "worker %d: event loop stopped: %v", idx, err)
		os.Exit(1)
	}
}

func inheritedListeners(ports []int) ([]*net.TCPListener, error) {
	out := make([]*net.TCPListener, 0, len(ports))
	for i := range ports {
		f := os.NewFile(uintptr(3+i), "listener-"+strconv.Itoa(ports[i]))
		ln, err := net.FileListener(f)
		if err != nil {
			return nil, fmt.Errorf("xmoon: inherit listener fd=%d: %w", 3+i, err)
		}
		tl, ok := ln.(*net.TCPListener)
		if !ok {
			return nil, fmt.Errorf("xmoon: inherited fd=%d is not a TCP listener", 3+i)
		}
		out = append(out, tl)
	}
	return out, nil
}

// handleFrame is the application-level frame handler run on the worker
// pool; a real deployment would dispatch on f.Header.MsgCode into whatever
// protocol this server implements. This baseline echoes the frame body
// back to its sender through the send queue, exercising the full
// receive -> worker -> send pipeline end to end.
func handleFrame(f reactor.Frame, queue *reactor.SendQueue, log *logger.Logger) {
	log.Debug("dispatch frame code=%d len=%d trace=%s", f.Header.MsgCode, len(f.Body), f.Record.TraceID.String())
	queue.Push(reactor.Envelope{
		Record:   f.Record,
		Sequence: f.Sequence,
		Data:     f.Body,
	})
}
