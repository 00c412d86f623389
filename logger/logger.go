/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]any

var std = logrus.New()

func init() {
	std.SetOutput(os.Stdout)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetOutput redirects the package logger's output, mainly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetLevel sets the minimum level emitted by the package logger.
func SetLevel(l Level) {
	std.SetLevel(l.Logrus())
}

// Entry is a single structured log statement bound to a level.
type Entry struct {
	level  Level
	fields Fields
}

// WithFields returns an Entry carrying the given fields at this level.
func (l Level) WithFields(f Fields) *Entry {
	return &Entry{level: l, fields: f}
}

// Logf formats and emits a message at this level with no extra fields.
func (l Level) Logf(pattern string, args ...any) {
	entry := std.WithFields(logrus.Fields{})
	entry.Log(l.Logrus(), fmt.Sprintf(pattern, args...))
}

// LogErrorCtxf emits an error-bearing message at this level, annotating the
// entry with the error text and an optional component context label.
func (l Level) LogErrorCtxf(ctxLabel string, err error, pattern string, args ...any) {
	fields := logrus.Fields{}
	if err != nil {
		fields["error"] = err.Error()
	}
	if ctxLabel != "" {
		fields["context"] = ctxLabel
	}
	std.WithFields(fields).Log(l.Logrus(), fmt.Sprintf(pattern, args...))
}

// Log emits the entry's message with its fields attached.
func (e *Entry) Log(pattern string, args ...any) {
	lf := make(logrus.Fields, len(e.fields))
	for k, v := range e.fields {
		lf[k] = v
	}
	std.WithFields(lf).Log(e.level.Logrus(), fmt.Sprintf(pattern, args...))
}
