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

// Package protocol installs the HTTP/2 frame codec on a *http.Server once
// TLS ALPN has selected "h2", or an explicitly-configured cleartext h2c
// handler when the peer sends the HTTP/2 preface on a plaintext port.
package protocol

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	liberr "github.com/lucmarin/ingressd/errors"
)

var ErrConfigure = liberr.NewCodeError(liberr.MinPkgProtocol + 1)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgProtocol, getMessage)
}

func getMessage(code liberr.CodeError) string {
	if code == ErrConfigure {
		return "failed to configure HTTP/2 on server"
	}
	return ""
}

// Options exposes the http2.Server tunables that Configure applies; a zero
// value leaves the http2 default in place. The orchestrator sets MaxHandlers
// and AllowH2C from its configuration.
type Options struct {
	MaxHandlers                  int
	MaxConcurrentStreams         uint32
	PermitProhibitedCipherSuites bool
	MaxUploadBufferPerConnection int32
	MaxUploadBufferPerStream     int32
	IdleTimeout                  int64 // nanoseconds, 0 = unset
	AllowH2C                     bool
}

// Configure installs HTTP/2 support on srv. When opts.AllowH2C is set, srv's
// handler is wrapped so a cleartext HTTP/2 preface is accepted on a
// plaintext listener; otherwise a plaintext h2 preface is left to net/http's
// default protocol-error handling.
func Configure(srv *http.Server, opts Options) error {
	h2 := &http2.Server{}

	if opts.MaxHandlers > 0 {
		h2.MaxHandlers = opts.MaxHandlers
	}
	if opts.MaxConcurrentStreams > 0 {
		h2.MaxConcurrentStreams = opts.MaxConcurrentStreams
	}
	if opts.PermitProhibitedCipherSuites {
		h2.PermitProhibitedCipherSuites = true
	}
	if opts.MaxUploadBufferPerConnection > 0 {
		h2.MaxUploadBufferPerConnection = opts.MaxUploadBufferPerConnection
	}
	if opts.MaxUploadBufferPerStream > 0 {
		h2.MaxUploadBufferPerStream = opts.MaxUploadBufferPerStream
	}
	if opts.IdleTimeout > 0 {
		h2.IdleTimeout = time.Duration(opts.IdleTimeout)
	}

	if err := http2.ConfigureServer(srv, h2); err != nil {
		return ErrConfigure.Error(err)
	}

	if opts.AllowH2C && srv.Handler != nil {
		srv.Handler = h2c.NewHandler(srv.Handler, h2)
	}

	return nil
}
