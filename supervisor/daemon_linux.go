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

package supervisor

import (
	"fmt"
	"os"
	"syscall"
)

// daemonEnv marks a re-exec'd process as already detached, so Daemonize
// does not fork indefinitely.
const daemonEnv = "XMOON_DAEMONIZED"

// Daemonize detaches the current process from its controlling terminal the
// way XMNCreateDaemon does: fork, setsid in the child, umask(0), redirect
// stdin/stdout/stderr to /dev/null. Go cannot fork in place, so the "fork"
// step is a self re-exec with Setsid set in SysProcAttr; the parent exits
// immediately after launching the child, exactly as the original's parent
// branch returns without proceeding to EpollInit.
func Daemonize() error {
	if os.Getenv(daemonEnv) == "1" {
		// Already the detached child from a previous Daemonize call.
		syscall.Umask(0)
		return redirectStdioToDevNull()
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("supervisor: open /dev/null: %w", err)
	}
	defer devnull.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("supervisor: resolve executable: %w", err)
	}

	env := append(os.Environ(), daemonEnv+"=1")
	proc, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Env:   env,
		Files: []*os.File{devnull, devnull, devnull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("supervisor: start detached process: %w", err)
	}

	// The original's parent branch returns 1 to its own caller, leaving
	// startup entirely to the child; here the parent exits with status 0
	// itself, so the return below is never reached.
	_ = proc
	os.Exit(0)
	return nil
}

func redirectStdioToDevNull() error {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()

	fd := int(devnull.Fd())
	for _, std := range []int{syscall.Stdin, syscall.Stdout, syscall.Stderr} {
		if err := syscall.Dup2(fd, std); err != nil {
			return fmt.Errorf("supervisor: dup2 fd=%d: %w", std, err)
		}
	}
	return nil
}
