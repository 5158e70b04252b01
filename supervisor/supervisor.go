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

package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/sabouaram/xmoon/config"
	"github.com/sabouaram/xmoon/logger"
)

// ListenBacklog is the accept backlog depth of XMN_LISTEN_BACKLOG.
// OpenListeners does not apply it: net.ListenConfig listens with the
// backlog Go reads from the kernel's somaxconn setting.
const ListenBacklog = 511

// workerEnv marks a re-exec'd process as a prefork worker rather than the
// master; its value is the worker's 0-based index, used only for logging.
const workerEnv = "XMOON_WORKER_INDEX"

// OpenListeners binds one TCP listener per port with SO_REUSEADDR and the
// kernel's default backlog (see ListenBacklog). On any failure it closes everything already
// opened and returns the error, the Go analogue of OpenListenSocket's
// rollback-on-failure goto.
func OpenListeners(ports []int) ([]*net.TCPListener, error) {
	opened := make([]*net.TCPListener, 0, len(ports))

	for _, port := range ports {
		lc := net.ListenConfig{
			Control: func(_, _ string, c syscall.RawConn) error {
				var ctlErr error
				err := c.Control(func(fd uintptr) {
					ctlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
				})
				if err != nil {
					return err
				}
				return ctlErr
			},
		}

		ln, err := lc.Listen(nil, "tcp", ":"+strconv.Itoa(port))
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, fmt.Errorf("supervisor: listen :%d: %w", port, err)
		}
		opened = append(opened, ln.(*net.TCPListener))
	}

	return opened, nil
}

// Supervisor owns the quitting flag, the PID file, and the fork-and-share
// lifecycle of worker processes.
type Supervisor struct {
	cfg config.Config
	log *logger.Logger

	quitting atomic.Bool
}

// New builds a Supervisor for cfg.
func New(cfg config.Config, log *logger.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, log: log}
}

// Quitting reports the single, process-wide shutdown flag; reactor.Run
// polls it on every loop iteration.
func (s *Supervisor) Quitting() bool {
	return s.quitting.Load()
}

// WorkerIndex returns this process's 0-based worker index and whether it is
// running as a forked worker at all (false means "I am the master";
// ForkWorkers forks a worker even when WorkerProcesses is 1).
func WorkerIndex() (int, bool) {
	raw, ok := os.LookupEnv(workerEnv)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// ForkWorkers launches cfg.WorkerProcesses copies of the current executable,
// each inheriting listeners via ExtraFiles (fd 3, 4, ... in arrival order),
// the Go analogue of a prefork master sharing its listening sockets across
// children instead of each worker calling listen() itself. It installs
// SIGINT/SIGTERM handling that forwards the signal to every child and waits
// for all of them to exit before returning.
func (s *Supervisor) ForkWorkers(listeners []*net.TCPListener) error {
	files := make([]*os.File, len(listeners))
	for i, ln := range listeners {
		f, err := ln.File()
		if err != nil {
			return fmt.Errorf("supervisor: dup listener fd: %w", err)
		}
		files[i] = f
	}

	if err := WritePIDFile(s.cfg.PidFile); err != nil {
		s.log.StdErr(1, "write pid file: %v", err)
	}
	defer RemovePIDFile(s.cfg.PidFile)

	n := s.cfg.WorkerProcesses
	if n <= 0 {
		n = 1
	}

	procs := make([]*os.Process, 0, n)
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("supervisor: resolve executable: %w", err)
	}

	for i := 0; i < n; i++ {
		env := append(os.Environ(), workerEnv+"="+strconv.Itoa(i))
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Env = env
		cmd.ExtraFiles = files
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			s.log.StdErr(2, "start worker %d: %v", i, err)
			continue
		}
		procs = append(procs, cmd.Process)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.quitting.Store(true)
		for _, p := range procs {
			_ = p.Signal(sig)
		}
	}()

	for _, p := range procs {
		_, _ = p.Wait()
	}
	return nil
}

// WatchSignals installs SIGINT/SIGTERM handling that sets the quitting flag
// directly, for use inside a single worker process (no children of its
// own), the counterpart of ForkWorkers' forwarding loop for the master.
func (s *Supervisor) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		s.quitting.Store(true)
	}()
}
