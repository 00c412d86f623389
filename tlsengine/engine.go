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

// Package tlsengine builds per-connection TLS engines from PEM certificate
// material: ALPN advertises h2 before http/1.1, the version floor is TLS 1.2,
// and only modern cipher suites are offered.
package tlsengine

import (
	"crypto/tls"
	"sync"

	liberr "github.com/lucmarin/ingressd/errors"
)

var (
	ErrBadPair  = liberr.NewCodeError(liberr.MinPkgCertificate + 1)
	ErrNoPair   = liberr.NewCodeError(liberr.MinPkgCertificate + 2)
	ErrHandshake = liberr.NewCodeError(liberr.MinPkgCertificate + 3)
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCertificate, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrBadPair:
		return "certificate and key do not match or cannot be parsed"
	case ErrNoPair:
		return "no certificate pair registered"
	case ErrHandshake:
		return "TLS handshake failed"
	default:
		return ""
	}
}

// modernCipherSuites restricts negotiation to AEAD suites; TLS 1.3 suites are
// not listed since the stdlib ignores CipherSuites for 1.3 and picks its own.
var modernCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// TLSConfig holds one or more named certificate pairs and produces *tls.Config
// values configured for ALPN-negotiated HTTP/1.1 and HTTP/2.
type TLSConfig interface {
	// AddCertificatePairString adds a certificate pair to the pool from a PEM
	// encoded string, keyed by serverName for SNI selection. When SNI does
	// not match any registered name, the first registered pair is used.
	AddCertificatePairString(serverName, key, crt string) error

	// LenCertificatePair returns the number of registered certificate pairs.
	LenCertificatePair() int

	// SetVersionMin sets the minimum TLS protocol version. Defaults to
	// tls.VersionTLS12.
	SetVersionMin(v uint16)

	// SetVersionMax sets the maximum TLS protocol version. Defaults to
	// tls.VersionTLS13.
	SetVersionMax(v uint16)

	// TlsConfig builds a *tls.Config. serverName selects the pair placed in
	// Certificates; when no pair is registered under that name, the first
	// registered pair is used.
	TlsConfig(serverName string) *tls.Config
}

type pair struct {
	cert tls.Certificate
}

type engine struct {
	mu       sync.RWMutex
	pairs    map[string]*pair
	order    []string
	verMin   uint16
	verMax   uint16
}

// New returns a TLSConfig with no certificate pairs registered and the
// version floor/ceiling set to TLS 1.2 / TLS 1.3.
func New() TLSConfig {
	return &engine{
		pairs:  make(map[string]*pair),
		verMin: tls.VersionTLS12,
		verMax: tls.VersionTLS13,
	}
}

func (e *engine) AddCertificatePairString(serverName, key, crt string) error {
	c, err := tls.X509KeyPair([]byte(crt), []byte(key))
	if err != nil {
		return ErrBadPair.Error(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pairs[serverName]; !ok {
		e.order = append(e.order, serverName)
	}
	e.pairs[serverName] = &pair{cert: c}

	return nil
}

func (e *engine) LenCertificatePair() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pairs)
}

func (e *engine) SetVersionMin(v uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verMin = v
}

func (e *engine) SetVersionMax(v uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verMax = v
}

func (e *engine) TlsConfig(serverName string) *tls.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg := &tls.Config{
		MinVersion:       e.verMin,
		MaxVersion:       e.verMax,
		CipherSuites:     modernCipherSuites,
		NextProtos:       []string{"h2", "http/1.1"},
		GetCertificate:   e.getCertificate,
	}

	if p, ok := e.pairs[serverName]; ok {
		cfg.Certificates = []tls.Certificate{p.cert}
	} else if len(e.order) > 0 {
		cfg.Certificates = []tls.Certificate{e.pairs[e.order[0]].cert}
	}

	return cfg
}

// getCertificate implements SNI-based certificate selection, falling back to
// the first registered pair when the requested name is unknown.
func (e *engine) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.order) == 0 {
		return nil, ErrNoPair.Error(nil)
	}

	if hello != nil {
		if p, ok := e.pairs[hello.ServerName]; ok {
			return &p.cert, nil
		}
	}

	return &e.pairs[e.order[0]].cert, nil
}
