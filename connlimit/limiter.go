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

// Package connlimit wraps a net.Listener to enforce a global cap on
// concurrently open connections. This operates at the TCP Accept level,
// before TLS or HTTP parsing, so refused connections never consume a
// handshake or a worker.
package connlimit

import (
	"net"
	"sync/atomic"

	"github.com/lucmarin/ingressd/metrics"
)

// Limiter wraps a net.Listener with a global concurrently-open-connection cap.
type Limiter struct {
	net.Listener
	max   int64
	total int64
	mtr   *metrics.Registry
}

// New wraps l with a cap of max concurrently open connections. A refused
// connection is accepted at the socket level and closed immediately, with no
// TLS handshake and no response bytes written, per the admission contract.
func New(l net.Listener, max int64, mtr *metrics.Registry) *Limiter {
	return &Limiter{Listener: l, max: max, mtr: mtr}
}

// Open returns the current count of connections held open by the limiter.
func (l *Limiter) Open() int64 {
	return atomic.LoadInt64(&l.total)
}

func (l *Limiter) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		admitted := false
		for {
			cur := atomic.LoadInt64(&l.total)
			if cur >= l.max {
				break
			}
			if atomic.CompareAndSwapInt64(&l.total, cur, cur+1) {
				admitted = true
				break
			}
		}

		if !admitted {
			_ = conn.Close()
			if l.mtr != nil {
				l.mtr.ConnectionsRejected.Inc()
			}
			continue
		}

		return &trackedConn{Conn: conn, l: l}, nil
	}
}

// trackedConn decrements the limiter's counter exactly once, no matter how
// many times Close is called.
type trackedConn struct {
	net.Conn
	l      *Limiter
	closed int32
}

func (c *trackedConn) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		atomic.AddInt64(&c.l.total, -1)
	}
	return c.Conn.Close()
}
