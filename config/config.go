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

// Package config turns the external map[string]string configuration input
// into a validated Config, the Go analogue of XMNSocket::ReadConf.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/sabouaram/xmoon/logger/level"
	"github.com/sabouaram/xmoon/xerror"
)

// Config is the validated, immutable configuration a supervisor needs to
// start. Every field here was named by spec.md §6 as a recognized key.
type Config struct {
	ListenPorts       []int
	WorkerProcesses   int
	WorkerConnections int
	WorkerPoolSize    int
	RecycleWaitTime   time.Duration
	PidFile           string
	LogLevel          level.Level
	LogFile           string
}

const (
	defaultWorkerProcesses   = 1
	defaultWorkerConnections = 1024
	defaultWorkerPoolSize    = 8
	defaultRecycleWaitSec    = 60
)

// Load validates m and produces a Config, or the first xerror.Error
// encountered, matching ReadConf's one-error-code-per-failure-mode
// contract rather than collecting every problem at once.
func Load(m map[string]string) (Config, error) {
	var c Config

	ports, err := parsePorts(m)
	if err != nil {
		return c, err
	}
	c.ListenPorts = ports

	c.WorkerProcesses = parsePositiveIntDefault(m, "WorkerProcesses", defaultWorkerProcesses)
	c.WorkerConnections = parsePositiveIntDefault(m, "WorkerConnections", defaultWorkerConnections)
	c.WorkerPoolSize = parsePositiveIntDefault(m, "WorkerPoolSize", defaultWorkerPoolSize)

	waitSec := parsePositiveIntDefault(m, "RecyConnSockInfoWaitTime", defaultRecycleWaitSec)
	c.RecycleWaitTime = time.Duration(waitSec) * time.Second

	c.PidFile = m["PidFile"]
	c.LogFile = m["Log"]
	c.LogLevel = level.Parse(m["LogLevel"])

	return c, nil
}

// parsePorts reads "ListenPortCount" and the corresponding "ListenPort<i>"
// keys (0-indexed, i in [0, count)), the same shape as the original's
// per-index ReadConf loop.
func parsePorts(m map[string]string) ([]int, error) {
	count := parsePositiveIntDefault(m, "ListenPortCount", 1)

	ports := make([]int, 0, count)
	for i := 0; i < count; i++ {
		key := "ListenPort" + strconv.Itoa(i)
		raw, ok := m[key]
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, xerror.New(xerror.ConfigMissingPort)
		}
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerror.Wrap(xerror.ConfigInvalidPort, err)
		}
		if p <= 0 || p > 65535 {
			return nil, xerror.New(xerror.ConfigInvalidPort)
		}
		ports = append(ports, p)
	}

	if len(ports) == 0 {
		return nil, xerror.New(xerror.ConfigMissingPort)
	}
	return ports, nil
}

func parsePositiveIntDefault(m map[string]string, key string, def int) int {
	raw, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
