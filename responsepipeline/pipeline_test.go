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

package responsepipeline_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lucmarin/ingressd/metrics"
	"github.com/lucmarin/ingressd/responsepipeline"
)

var _ = Describe("Pipeline", func() {
	var (
		mtr  *metrics.Registry
		cors responsepipeline.CORSConfig
	)

	BeforeEach(func() {
		mtr = metrics.New()
		cors = responsepipeline.CORSConfig{
			AllowedOrigins: []string{"https://example.com"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         600,
		}
	})

	It("short-circuits a CORS preflight before reaching next", func() {
		called := false
		p := responsepipeline.New(cors, mtr)
		h := p.Wrap(func(w http.ResponseWriter, r *http.Request) { called = true })

		req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		Expect(called).To(BeFalse())
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get("Access-Control-Allow-Methods")).To(Equal("GET, POST"))

		dump := mtr.Dump()
		Expect(dump["requests_total"]).To(Equal(1.0))
		Expect(dump["response_codes_total.noContent"]).To(Equal(1.0))
	})

	It("passes non-preflight requests through to next and meters the status", func() {
		p := responsepipeline.New(cors, mtr)
		h := p.Wrap(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})

		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		dump := mtr.Dump()
		Expect(dump["response_codes_total."+metrics.StatusBucketName(http.StatusCreated)]).To(Equal(1.0))
		Expect(dump["requests_total"]).To(Equal(1.0))
	})

	It("defaults the status to 200 when the handler never calls WriteHeader", func() {
		p := responsepipeline.New(cors, mtr)
		h := p.Wrap(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})

		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		dump := mtr.Dump()
		Expect(dump["response_codes_total."+metrics.StatusBucketName(http.StatusOK)]).To(Equal(1.0))
	})

	It("does not set CORS headers for a disallowed origin", func() {
		p := responsepipeline.New(cors, mtr)
		h := p.Wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})
