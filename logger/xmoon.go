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

// Package logger is the severity+error-code logging facade the reactor,
// worker pool, connection pool and supervisor call into. It is backed by
// logrus the way the rest of this codebase's ecosystem is, with the level
// vocabulary supplied by the sibling level package.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sabouaram/xmoon/logger/level"
)

// Logger formats and routes (severity, error code, message) triples to a
// logrus.Logger. Error codes are caller-defined integers (see package
// xerror) logged as a structured field, not encoded into the message text.
type Logger struct {
	lg  *logrus.Logger
	min level.Level
}

// New builds a Logger writing to stderr at the given minimum level. A file
// hook can be layered on afterwards with AddFileHook.
func New(lvl level.Level) *Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetLevel(lvl.Logrus())
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{lg: lg, min: lvl}
}

// AddFileHook layers a second output onto path, keeping stderr active. It
// mirrors the original config's optional "Log" file destination.
func (l *Logger) AddFileHook(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.lg.AddHook(&fileHook{file: f, level: l.min.Logrus()})
	return nil
}

type fileHook struct {
	file  *os.File
	level logrus.Level
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.level+1]
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	line, err := e.Bytes()
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	return err
}

func (l *Logger) entry(code int) *logrus.Entry {
	return l.lg.WithField("code", code)
}

// Info logs an informational event with an application error code (0 for
// plain success/progress messages).
func (l *Logger) Info(code int, format string, args ...any) {
	l.entry(code).Infof(format, args...)
}

// Warn logs a degraded-but-continuing condition, matching spec.md's
// "recoverable by continuing" error tier.
func (l *Logger) Warn(code int, format string, args ...any) {
	l.entry(code).Warnf(format, args...)
}

// StdErr logs a caller-visible failure, matching spec.md's
// "recoverable by caller action" error tier.
func (l *Logger) StdErr(code int, format string, args ...any) {
	l.entry(code).Errorf(format, args...)
}

// Fatal logs an unrecoverable condition and matches spec.md's third error
// tier; it does not itself exit the process, callers decide that.
func (l *Logger) Fatal(code int, format string, args ...any) {
	l.entry(code).Errorf("FATAL: "+format, args...)
}

// Debug logs at DebugLevel with no error code, for high-volume diagnostic
// output (accept/read/write tracing).
func (l *Logger) Debug(format string, args ...any) {
	l.lg.Debugf(format, args...)
}
