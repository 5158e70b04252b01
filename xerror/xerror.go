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

// Package xerror provides the categorized integer error codes this system
// surfaces at its boundaries: 0 is success, negative values are categorized
// failures, matching spec.md's two-tier error propagation policy.
package xerror

import "fmt"

// Code is a caller-visible categorized error code.
type Code int

const (
	OK Code = 0

	// Config errors: -1xx
	ConfigMissingPort  Code = -101
	ConfigInvalidPort  Code = -102
	ConfigInvalidPool  Code = -103
	ConfigInvalidValue Code = -104

	// Socket/reactor errors: -2xx
	SocketListenFailed Code = -201
	SocketAcceptFailed Code = -202
	SocketEpollFailed  Code = -203

	// Pool errors: -3xx
	PoolExhausted Code = -301

	// Framing errors: -4xx
	FrameOversize  Code = -401
	FrameUndersize Code = -402

	// Send errors: -5xx
	SendPeerClosed Code = -501
	SendFailed     Code = -502
)

// String names the code the way an operator reading a log line wants it,
// not a generic "unknown error" placeholder.
func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ConfigMissingPort:
		return "config: missing listen port"
	case ConfigInvalidPort:
		return "config: invalid listen port"
	case ConfigInvalidPool:
		return "config: invalid pool size"
	case ConfigInvalidValue:
		return "config: invalid value"
	case SocketListenFailed:
		return "socket: listen failed"
	case SocketAcceptFailed:
		return "socket: accept failed"
	case SocketEpollFailed:
		return "socket: epoll failed"
	case PoolExhausted:
		return "pool: exhausted"
	case FrameOversize:
		return "frame: oversize"
	case FrameUndersize:
		return "frame: undersize"
	case SendPeerClosed:
		return "send: peer closed"
	case SendFailed:
		return "send: failed"
	default:
		return fmt.Sprintf("unknown error (%d)", int(c))
	}
}

// Error wraps a Code with the underlying cause, when one exists.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error for code with no underlying cause.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Wrap builds an *Error for code with cause attached, returning nil if
// cause is nil so call sites can write `return xerror.Wrap(code, err)`
// unconditionally after a fallible call.
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Cause: cause}
}
