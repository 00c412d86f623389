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

// Package ipfilter evaluates a remote address against an allow-list and a
// deny-list of CIDR ranges. Evaluation order: if the allow-list is
// non-empty, the remote must match it; then, if the remote matches the
// deny-list, it is rejected.
package ipfilter

import (
	"net"

	liberr "github.com/lucmarin/ingressd/errors"
)

var ErrBadCIDR = liberr.NewCodeError(liberr.MinPkgIPFilter + 1)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgIPFilter, getMessage)
}

func getMessage(code liberr.CodeError) string {
	if code == ErrBadCIDR {
		return "invalid CIDR range"
	}
	return ""
}

// Filter holds the compiled allow-list and deny-list.
type Filter struct {
	allow []*net.IPNet
	deny  []*net.IPNet
}

// New compiles the given CIDR strings into a Filter. A malformed CIDR
// returns ErrBadCIDR, fatal at startup.
func New(allowCIDRs, denyCIDRs []string) (*Filter, error) {
	allow, err := parseAll(allowCIDRs)
	if err != nil {
		return nil, err
	}

	deny, err := parseAll(denyCIDRs)
	if err != nil {
		return nil, err
	}

	return &Filter{allow: allow, deny: deny}, nil
}

func parseAll(cidrs []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, ErrBadCIDR.Error(err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Allowed reports whether ip passes the allow-list (if non-empty) and does
// not match the deny-list.
func (f *Filter) Allowed(ip net.IP) bool {
	if len(f.allow) > 0 && !matchAny(f.allow, ip) {
		return false
	}
	return !matchAny(f.deny, ip)
}

func matchAny(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Listener wraps a net.Listener, rejecting connections from disallowed
// remotes before TLS negotiation: the connection is closed immediately with
// no handshake and no response bytes.
type Listener struct {
	net.Listener
	filter  *Filter
	onDeny  func()
}

// NewListener wraps l, calling onDeny (metrics accounting) for every
// rejected connection.
func NewListener(l net.Listener, f *Filter, onDeny func()) *Listener {
	return &Listener{Listener: l, filter: f, onDeny: onDeny}
}

func (l *Listener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if err != nil || ip == nil || !l.filter.Allowed(ip) {
			_ = conn.Close()
			if l.onDeny != nil {
				l.onDeny()
			}
			continue
		}

		return conn, nil
	}
}
