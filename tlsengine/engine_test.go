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

package tlsengine_test

import (
	"crypto/tls"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lucmarin/ingressd/internal/testsupport"
	"github.com/lucmarin/ingressd/tlsengine"
)

var _ = Describe("TLSConfig", func() {
	var (
		cfg     tlsengine.TLSConfig
		certPEM string
		keyPEM  string
	)

	BeforeEach(func() {
		var err error
		certPEM, keyPEM, err = testsupport.GenerateSelfSigned()
		Expect(err).ToNot(HaveOccurred())
		cfg = tlsengine.New()
	})

	It("starts with no certificate pairs", func() {
		Expect(cfg.LenCertificatePair()).To(Equal(0))
	})

	It("registers a valid certificate pair", func() {
		Expect(cfg.AddCertificatePairString("", keyPEM, certPEM)).To(Succeed())
		Expect(cfg.LenCertificatePair()).To(Equal(1))
	})

	It("rejects a key that does not match the certificate", func() {
		otherCert, _, err := testsupport.GenerateSelfSigned()
		Expect(err).ToNot(HaveOccurred())

		Expect(cfg.AddCertificatePairString("", keyPEM, otherCert)).ToNot(Succeed())
		Expect(cfg.LenCertificatePair()).To(Equal(0))
	})

	It("rejects unparseable PEM material", func() {
		Expect(cfg.AddCertificatePairString("", "not a key", "not a cert")).ToNot(Succeed())
	})

	Context("with a registered pair", func() {
		BeforeEach(func() {
			Expect(cfg.AddCertificatePairString("", keyPEM, certPEM)).To(Succeed())
		})

		It("advertises h2 before http/1.1 via ALPN", func() {
			tc := cfg.TlsConfig("")
			Expect(tc.NextProtos).To(Equal([]string{"h2", "http/1.1"}))
		})

		It("floors the protocol version at TLS 1.2", func() {
			tc := cfg.TlsConfig("")
			Expect(tc.MinVersion).To(Equal(uint16(tls.VersionTLS12)))
		})

		It("honors a raised version floor", func() {
			cfg.SetVersionMin(tls.VersionTLS13)
			Expect(cfg.TlsConfig("").MinVersion).To(Equal(uint16(tls.VersionTLS13)))
		})

		It("falls back to the first registered pair for an unknown SNI name", func() {
			tc := cfg.TlsConfig("")
			crt, err := tc.GetCertificate(&tls.ClientHelloInfo{ServerName: "unknown.example"})
			Expect(err).ToNot(HaveOccurred())
			Expect(crt).ToNot(BeNil())
		})
	})

	It("fails per-connection certificate selection with no pairs registered", func() {
		tc := cfg.TlsConfig("")
		_, err := tc.GetCertificate(&tls.ClientHelloInfo{})
		Expect(err).To(HaveOccurred())
	})
})
