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

// Package firewall counts protocol-level anomalies without blocking: the
// core never drops a connection at this layer, it only exposes the counters
// for operators and alerting.
package firewall

import (
	"io"
	"net/http"
	"strings"

	"github.com/lucmarin/ingressd/logger"
	"github.com/lucmarin/ingressd/metrics"
)

const (
	// DefaultMaxHeaderBytes matches net/http's own header block ceiling.
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultMaxRequestLineBytes bounds method + URI + version.
	DefaultMaxRequestLineBytes = 8 << 10
)

// Counters records protocol-level anomaly events into the shared metrics
// registry.
type Counters struct {
	mtr            *metrics.Registry
	maxHeaderBytes int
	maxRequestLine int
}

// New binds the firewall counters to mtr with the default anomaly thresholds.
func New(mtr *metrics.Registry) *Counters {
	return &Counters{
		mtr:            mtr,
		maxHeaderBytes: DefaultMaxHeaderBytes,
		maxRequestLine: DefaultMaxRequestLineBytes,
	}
}

// Observe inspects an already-parsed request at the request boundary and
// records any anomalies. It never rejects: admission stays with the limiter
// and rate-limiter stages.
func (c *Counters) Observe(r *http.Request) {
	if len(r.Method)+len(r.RequestURI)+len(r.Proto)+2 > c.maxRequestLine {
		c.RequestLineTooLong()
	}

	var size int
	for k, vv := range r.Header {
		size += len(k)
		for _, v := range vv {
			size += len(v)
		}
	}
	if size > c.maxHeaderBytes {
		c.OversizeHeader()
	}
}

// OversizeHeader records a request whose header block exceeded the
// configured limit.
func (c *Counters) OversizeHeader() {
	c.mtr.FirewallOversizeHeader.Inc()
}

// MalformedFrame records a malformed HTTP/2 frame or HTTP/1.1 parse failure.
func (c *Counters) MalformedFrame() {
	c.mtr.FirewallMalformedFrame.Inc()
}

// RequestLineTooLong records a request line exceeding the configured limit.
func (c *Counters) RequestLineTooLong() {
	c.mtr.FirewallRequestLineTooLong.Inc()
}

// LogWriter returns an io.Writer suitable for http.Server.ErrorLog. Frame and
// framing-parse errors surfaced there increment the malformed-frame counter;
// every line is then forwarded to the module logger at debug level, since
// per-connection errors are non-fatal. Admission rejections are metered
// separately.
func (c *Counters) LogWriter() io.Writer {
	return logWriter{c: c}
}

type logWriter struct {
	c *Counters
}

func (w logWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))

	if strings.Contains(line, "malformed") ||
		strings.Contains(line, "PROTOCOL_ERROR") ||
		strings.Contains(line, "frame") {
		w.c.MalformedFrame()
	}

	logger.DebugLevel.Logf("http server: %s", line)
	return len(p), nil
}
