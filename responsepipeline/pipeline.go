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

// Package responsepipeline applies CORS handling and status-code metering
// around a router.Handler. Preflight handling runs before rate-limiter
// accounting but after connection/IP admission, since it wraps the
// already-admitted request.
package responsepipeline

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/lucmarin/ingressd/metrics"
)

// CORSConfig holds the CORS policy applied by the pipeline.
type CORSConfig struct {
	AllowedOrigins   []string // "*" matches any origin
	AllowedMethods   []string
	AllowedHeaders   []string
	MaxAge           int // seconds
	AllowCredentials bool
}

func (c CORSConfig) originAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Pipeline wraps a plain http.HandlerFunc with CORS + metering.
type Pipeline struct {
	cors CORSConfig
	mtr  *metrics.Registry
}

// New builds a Pipeline bound to the given CORS policy and metrics registry.
func New(cors CORSConfig, mtr *metrics.Registry) *Pipeline {
	return &Pipeline{cors: cors, mtr: mtr}
}

// countingWriter captures the status code ultimately written so exactly one
// status meter is incremented per response.
type countingWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *countingWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming handlers keep working
// through the metering wrapper.
func (w *countingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *countingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *countingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Wrap returns an http.Handler that ticks the request meter, applies CORS
// preflight short-circuiting, then next, then status metering on the
// response actually written. The request meter counts every received
// request regardless of outcome, preflights included.
func (p *Pipeline) Wrap(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mtr.Requests.Inc()

		origin := r.Header.Get("Origin")

		if origin != "" {
			if p.cors.originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if p.cors.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
		}

		if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
			if p.cors.originAllowed(origin) {
				if len(p.cors.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(p.cors.AllowedMethods, ", "))
				}
				if len(p.cors.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(p.cors.AllowedHeaders, ", "))
				}
				if p.cors.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(p.cors.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				p.mtr.ObserveStatus(http.StatusNoContent)
				return
			}
		}

		cw := &countingWriter{ResponseWriter: w}
		next(cw, r)

		if !cw.wrote {
			cw.status = http.StatusOK
		}
		p.mtr.ObserveStatus(cw.status)
	})
}
