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

// Package metrics is the process-wide request/connection/firewall counter
// registry shared by every pipeline stage and surfaced by the admin package.
// A Registry is constructed once per server context and passed down
// explicitly rather than reached for as a package-level singleton, so tests
// can build and discard isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var recognizedStatusMeters = map[int]string{
	200: "ok",
	201: "created",
	202: "accepted",
	204: "noContent",
	400: "badRequest",
	401: "unauthorized",
	403: "forbidden",
	404: "notFound",
	429: "tooManyRequests",
	500: "serverError",
}

// Registry holds every counter the ingress core exposes at /metrics.
type Registry struct {
	reg *prometheus.Registry

	Requests            prometheus.Counter
	ResponseCodes       *prometheus.CounterVec
	RouteHits           *prometheus.CounterVec
	ConnectionsRejected prometheus.Counter
	ConnectionsFiltered prometheus.Counter

	FirewallOversizeHeader     prometheus.Counter
	FirewallMalformedFrame     prometheus.Counter
	FirewallRequestLineTooLong prometheus.Counter
}

// New builds a fresh Registry with all counters registered under reg.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total requests received, regardless of outcome.",
		}),
		ResponseCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "response_codes_total",
			Help: "Responses written, labeled by recognized status bucket.",
		}, []string{"bucket"}),
		RouteHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "route_requests_total",
			Help: "Requests dispatched per registered route pattern.",
		}, []string{"method", "pattern"}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Connections refused by the connection limiter.",
		}),
		ConnectionsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connections_filtered_total",
			Help: "Connections refused by the IP filter.",
		}),
		FirewallOversizeHeader: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firewall_oversize_header_total",
			Help: "Requests observed with oversized headers.",
		}),
		FirewallMalformedFrame: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firewall_malformed_frame_total",
			Help: "Malformed protocol frames observed.",
		}),
		FirewallRequestLineTooLong: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firewall_request_line_too_long_total",
			Help: "Requests observed with an oversized request line.",
		}),
	}

	reg.MustRegister(
		r.Requests,
		r.ResponseCodes,
		r.RouteHits,
		r.ConnectionsRejected,
		r.ConnectionsFiltered,
		r.FirewallOversizeHeader,
		r.FirewallMalformedFrame,
		r.FirewallRequestLineTooLong,
	)

	return r
}

// Prometheus exposes the underlying registry for promhttp wiring.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// ObserveStatus increments the named meter for status, or the catch-all
// "other" bucket for unrecognized codes. Exactly one meter is incremented
// per call.
func (r *Registry) ObserveStatus(status int) {
	if name, ok := recognizedStatusMeters[status]; ok {
		r.ResponseCodes.WithLabelValues(name).Inc()
		return
	}
	r.ResponseCodes.WithLabelValues("other").Inc()
}

// Dump renders every counter as a flat map of fully-qualified name to
// value, the JSON shape served by the admin /metrics endpoint.
func (r *Registry) Dump() map[string]float64 {
	out := make(map[string]float64)

	mfs, err := r.reg.Gather()
	if err != nil {
		return out
	}

	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lbl := range m.GetLabel() {
				name += "." + lbl.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				out[name] = c.GetValue()
			}
		}
	}

	return out
}

// StatusBucketName returns the metric label used for a given status, for
// tests that want to assert on a specific bucket without recomputing it.
func StatusBucketName(status int) string {
	if name, ok := recognizedStatusMeters[status]; ok {
		return name
	}
	return "other"
}
