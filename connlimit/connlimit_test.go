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

package connlimit_test

import (
	"errors"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lucmarin/ingressd/connlimit"
	"github.com/lucmarin/ingressd/metrics"
)

// fakeListener hands out net.Pipe client halves on demand, enough to drive
// the limiter's Accept loop without a real socket.
type fakeListener struct {
	conns chan net.Conn
}

func newFakeListener(n int) *fakeListener {
	fl := &fakeListener{conns: make(chan net.Conn, n)}
	for i := 0; i < n; i++ {
		server, client := net.Pipe()
		_ = client
		fl.conns <- server
	}
	return fl
}

func (f *fakeListener) Accept() (net.Conn, error) {
	c, ok := <-f.conns
	if !ok {
		return nil, errors.New("closed")
	}
	return c, nil
}

func (f *fakeListener) Close() error { close(f.conns); return nil }
func (f *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

var _ = Describe("Limiter", func() {
	It("admits connections under the cap", func() {
		fl := newFakeListener(2)
		mtr := metrics.New()
		l := connlimit.New(fl, 2, mtr)

		c1, err := l.Accept()
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Open()).To(Equal(int64(1)))

		c2, err := l.Accept()
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Open()).To(Equal(int64(2)))

		_ = c1.Close()
		_ = c2.Close()
		Expect(l.Open()).To(Equal(int64(0)))
	})

	It("rejects connections past the cap and closes them immediately", func() {
		fl := newFakeListener(2)
		mtr := metrics.New()
		l := connlimit.New(fl, 1, mtr)

		c1, err := l.Accept()
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Open()).To(Equal(int64(1)))

		// The second queued conn is over cap and gets closed+skipped
		// internally; Accept blocks on the (now-empty, closed) backlog, so
		// close the listener to unblock it deterministically.
		go func() { _ = fl.Close() }()
		_, err = l.Accept()
		Expect(err).To(HaveOccurred())

		Expect(mtr.Dump()["connections_rejected_total"]).To(Equal(1.0))
		_ = c1.Close()
	})

	It("decrements the counter exactly once no matter how many times Close is called", func() {
		fl := newFakeListener(1)
		mtr := metrics.New()
		l := connlimit.New(fl, 1, mtr)

		c, err := l.Accept()
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Open()).To(Equal(int64(1)))

		_ = c.Close()
		_ = c.Close()
		Expect(l.Open()).To(Equal(int64(0)))
	})
})
