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

// Package router is a compiled path-pattern matcher with parameter capture.
// Within a method, patterns are matched in registration order and the first
// match wins — deliberately not a radix tree, so precedence is exactly what
// the application registered rather than longest-match-first.
package router

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/lucmarin/ingressd/reqcontext"
)

// Handler is the contract user code implements for a registered route.
type Handler func(w http.ResponseWriter, r *http.Request)

type segment struct {
	literal string
	param   string // non-empty when this segment is a {param}
}

func (s segment) isParam() bool {
	return s.param != ""
}

type route struct {
	method   string
	raw      string
	segments []segment
	handler  Handler
}

// List is the mutable route table. It is safe to register routes from a
// single goroutine up until Freeze is called; after that it is read-only.
type List struct {
	mu     sync.Mutex
	routes []*route
	frozen bool
}

// NewList returns an empty, unfrozen route table.
func NewList() *List {
	return &List{}
}

// Register adds a route. Patterns are compiled into Literal/Param segments
// at registration time. Registering after Freeze is a silent no-op: once
// the server is serving, the table snapshot is frozen.
func (l *List) Register(method, pattern string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return
	}

	l.routes = append(l.routes, &route{
		method:   strings.ToUpper(method),
		raw:      pattern,
		segments: compile(pattern),
		handler:  h,
	})
}

func compile(pattern string) []segment {
	parts := splitPath(pattern)
	segs := make([]segment, 0, len(parts))

	for _, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			segs = append(segs, segment{param: p[1 : len(p)-1]})
		} else {
			segs = append(segs, segment{literal: p})
		}
	}

	return segs
}

// splitPath splits on "/", ignoring the leading empty segment and any
// trailing slash.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Snapshot is the frozen, read-only view of the route table published to
// the router at Binding. It holds no lock: all workers read the same slice.
type Snapshot struct {
	routes []*route
}

// Freeze compiles and publishes an immutable snapshot. Subsequent Register
// calls are ignored. Safe to call once; repeat calls return the same
// snapshot.
func (l *List) Freeze() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
	return &Snapshot{routes: l.routes}
}

// Result is what Match returns: either a resolved route, a 404, or a 405
// with the set of methods known for that path.
type Result struct {
	Handler    Handler
	Params     reqcontext.Params
	Pattern    string // the registered pattern that matched, for per-route metering
	Matched    bool
	AllowedSet []string // non-nil only on 405
}

// Match splits the path and walks the patterns registered for the method
// in insertion order; the first segment-match wins.
// If no pattern matches under the request method but one matches under a
// different method, that is a 405 with Allow listing the known methods.
func (s *Snapshot) Match(method, path string) Result {
	method = strings.ToUpper(method)
	parts := splitPath(path)

	var allowed []string
	seen := make(map[string]bool)

	for _, rt := range s.routes {
		params, ok := matchSegments(rt.segments, parts)
		if !ok {
			continue
		}

		if rt.method == method {
			return Result{Handler: rt.handler, Params: params, Pattern: rt.raw, Matched: true}
		}

		if !seen[rt.method] {
			seen[rt.method] = true
			allowed = append(allowed, rt.method)
		}
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		return Result{AllowedSet: allowed}
	}

	return Result{}
}

func matchSegments(segs []segment, parts []string) (reqcontext.Params, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}

	var params reqcontext.Params

	for i, seg := range segs {
		if seg.isParam() {
			if params == nil {
				params = make(reqcontext.Params, len(segs))
			}
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}

	return params, true
}
