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

// Package reqcontext carries per-request state through the pipeline: the
// resolved route, captured path parameters, and a cancellation signal a
// handler is expected to observe at its next suspension point.
package reqcontext

import (
	"context"
	"net/http"
	"time"
)

type ctxKey int

const paramsKey ctxKey = iota

// Params is the path-parameter mapping captured during routing.
type Params map[string]string

// New attaches captured path parameters to ctx and returns the derived
// context along with its CancelFunc. The derived context is cancelled when
// parent is (net/http cancels the request context when the client connection
// closes mid-flight); the server calls the CancelFunc once the handler
// returns.
func New(parent context.Context, params Params) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	return context.WithValue(ctx, paramsKey, params), cancel
}

// ParamsFrom returns the path parameters captured for this request, or nil
// if none were attached.
func ParamsFrom(ctx context.Context) Params {
	if p, ok := ctx.Value(paramsKey).(Params); ok {
		return p
	}
	return nil
}

// Param returns a single captured path parameter, or "" if absent.
func Param(r *http.Request, name string) string {
	return ParamsFrom(r.Context())[name]
}

// Cancelled reports whether ctx has been cancelled, the signal a handler
// checks at its suspension points to abandon work early.
func Cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// WithDeadline is a thin convenience wrapper kept for symmetry with the
// duration config type used elsewhere in this module.
func WithDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
