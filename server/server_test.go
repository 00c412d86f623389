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

package server_test

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lucmarin/ingressd/duration"
	"github.com/lucmarin/ingressd/internal/testsupport"
	"github.com/lucmarin/ingressd/reqcontext"
	"github.com/lucmarin/ingressd/server"
)

func testConfig() *server.Config {
	certPEM, keyPEM, err := testsupport.GenerateSelfSigned()
	Expect(err).ToNot(HaveOccurred())

	return &server.Config{
		Listen:         "127.0.0.1:0",
		MaxConnections: 32,
		SoftReqPerSec:  1000,
		HardReqPerSec:  2000,
		Burst:          500,
		Cert:           certPEM,
		Key:            keyPEM,
		ServiceName:    "server-test",
		Version:        "test",
		DrainTimeout:   duration.Duration(2 * time.Second),
	}
}

func insecureClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: 5 * time.Second,
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		orch    *server.Orchestrator
		done    chan error
		started bool
	)

	BeforeEach(func() {
		orch = server.New(testConfig(), nil)
		done = make(chan error, 1)
		started = false
	})

	serve := func() string {
		started = true
		go func() { done <- orch.ListenAndServe() }()
		Eventually(orch.State, "3s", "10ms").Should(Equal(server.Serving))
		return orch.Addr()
	}

	AfterEach(func() {
		if !started {
			return
		}
		orch.Shutdown()
		Eventually(done, "5s").Should(Receive(BeNil()))
		Eventually(orch.State, "1s", "10ms").Should(Equal(server.Stopped))
	})

	It("routes a request and captures the path parameter", func() {
		orch.Routes.Register(http.MethodGet, "/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, reqcontext.Param(r, "id"))
		})
		addr := serve()

		resp, err := insecureClient().Get("https://" + addr + "/users/42")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal("42"))

		dump := orch.Metrics.Dump()
		Expect(dump["requests_total"]).To(BeNumerically(">=", 1))
		Expect(dump["response_codes_total.ok"]).To(BeNumerically(">=", 1))
		Expect(dump["route_requests_total.GET./users/{id}"]).To(Equal(1.0))
	})

	It("responds 405 with Allow when the path is known under a different method", func() {
		orch.Routes.Register(http.MethodGet, "/x", func(w http.ResponseWriter, r *http.Request) {})
		addr := serve()

		resp, err := insecureClient().Post("https://"+addr+"/x", "text/plain", nil)
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		Expect(resp.Header.Get("Allow")).To(Equal("GET"))
	})

	It("responds 404 for an unregistered path", func() {
		addr := serve()

		resp, err := insecureClient().Get("https://" + addr + "/nowhere")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(orch.Metrics.Dump()["response_codes_total.notFound"]).To(Equal(1.0))
	})

	It("negotiates h2 over ALPN when both protocols are offered", func() {
		addr := serve()

		conn, err := tls.Dial("tcp", addr, &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{"h2", "http/1.1"},
		})
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		Expect(conn.ConnectionState().NegotiatedProtocol).To(Equal("h2"))
	})

	It("ignores routes registered after serving begins", func() {
		addr := serve()

		orch.Routes.Register(http.MethodGet, "/late", func(w http.ResponseWriter, r *http.Request) {})

		resp, err := insecureClient().Get("https://" + addr + "/late")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("converts a handler panic into a 500 with a request id", func() {
		orch.Routes.Register(http.MethodGet, "/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		addr := serve()

		resp, err := insecureClient().Get("https://" + addr + "/boom")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(resp.Header.Get("X-Request-Id")).ToNot(BeEmpty())
		Expect(orch.Metrics.Dump()["response_codes_total.serverError"]).To(Equal(1.0))
	})

	It("refuses a second ListenAndServe call", func() {
		serve()
		Expect(orch.ListenAndServe()).To(HaveOccurred())
	})

	It("rejects an invalid configuration before binding", func() {
		bad := server.New(&server.Config{}, nil)
		Expect(bad.ListenAndServe()).To(HaveOccurred())
		Expect(bad.State()).ToNot(Equal(server.Serving))
	})
})
