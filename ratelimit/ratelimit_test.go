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

package ratelimit_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lucmarin/ingressd/ratelimit"
)

var _ = Describe("Limiter", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("admits requests within the soft rate", func() {
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(100),
			ratelimit.WithHardRate(200),
			ratelimit.WithBurst(5),
		)

		Expect(l.Allow("10.0.0.1")).To(Equal(ratelimit.Admitted))
	})

	It("soft-denies once the soft bucket is exhausted but keeps admitting under the hard cap", func() {
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(0.0001),
			ratelimit.WithHardRate(100),
			ratelimit.WithBurst(1),
		)

		Expect(l.Allow("10.0.0.2")).To(Equal(ratelimit.Admitted))
		Expect(l.Allow("10.0.0.2")).To(Equal(ratelimit.SoftDenied))
	})

	It("hard-denies once the hard bucket is exhausted", func() {
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(0.0001),
			ratelimit.WithHardRate(0.0001),
			ratelimit.WithBurst(1),
		)

		Expect(l.Allow("10.0.0.3")).To(Equal(ratelimit.Admitted))
		Expect(l.Allow("10.0.0.3")).To(Equal(ratelimit.HardDenied))
	})

	It("tracks distinct IPs independently", func() {
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(0.0001),
			ratelimit.WithHardRate(0.0001),
			ratelimit.WithBurst(1),
		)

		Expect(l.Allow("10.0.0.4")).To(Equal(ratelimit.Admitted))
		Expect(l.Allow("10.0.0.5")).To(Equal(ratelimit.Admitted))
		Expect(l.Len()).To(Equal(2))
	})

	It("invokes the onHardDenied callback", func() {
		var denied string
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(0.0001),
			ratelimit.WithHardRate(0.0001),
			ratelimit.WithBurst(1),
			ratelimit.WithOnHardDenied(func(ip string) { denied = ip }),
		)

		l.Allow("10.0.0.6")
		l.Allow("10.0.0.6")
		Expect(denied).To(Equal("10.0.0.6"))
	})

	It("evicts idle entries on its sweep", func() {
		l := ratelimit.New(ctx,
			ratelimit.WithSoftRate(100),
			ratelimit.WithHardRate(200),
			ratelimit.WithBurst(5),
			ratelimit.WithIdleTimeout(20*time.Millisecond),
		)

		l.Allow("10.0.0.7")
		Expect(l.Len()).To(Equal(1))

		Eventually(l.Len, "500ms", "10ms").Should(Equal(0))
	})
})
