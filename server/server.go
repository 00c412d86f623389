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

// Package server is the orchestrator: it binds the listener, composes the
// admission pipeline, and drives the Built→Binding→Serving→Draining→Stopped
// lifecycle. ListenAndServe is called exactly once from the
// controlling goroutine and blocks until Stopped — internally it may cycle
// back through Binding when a restart is requested, but the call itself
// never returns until the orchestrator is fully Stopped.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lucmarin/ingressd/admin"
	"github.com/lucmarin/ingressd/atomicval"
	"github.com/lucmarin/ingressd/connlimit"
	"github.com/lucmarin/ingressd/firewall"
	"github.com/lucmarin/ingressd/health"
	"github.com/lucmarin/ingressd/ipfilter"
	"github.com/lucmarin/ingressd/logger"
	"github.com/lucmarin/ingressd/metrics"
	"github.com/lucmarin/ingressd/protocol"
	"github.com/lucmarin/ingressd/ratelimit"
	"github.com/lucmarin/ingressd/reqcontext"
	"github.com/lucmarin/ingressd/reporter"
	"github.com/lucmarin/ingressd/responsepipeline"
	"github.com/lucmarin/ingressd/router"
	"github.com/lucmarin/ingressd/tlsengine"
)

const (
	shutdownTimeout  = 10 * time.Second
	acceptBackoffCap = 1 * time.Second
)

// Orchestrator binds a listener, composes the pipeline once, and drives the
// lifecycle state machine. Build one with New, register routes on its Routes
// table and checks on its Health registry, then call ListenAndServe.
type Orchestrator struct {
	cfg *Config
	tls tlsengine.TLSConfig

	Routes  *router.List
	Health  *health.Registry
	Metrics *metrics.Registry

	Firewall *firewall.Counters
	filter   *ipfilter.Filter

	state *atomicval.Value[State]

	srv         *http.Server
	ln          net.Listener
	cancelServe context.CancelFunc

	adminSrv *http.Server
	adminLn  net.Listener

	restartRequested atomic.Bool
	stopped          chan struct{}
}

// New constructs an Orchestrator in the Built state. cfg must pass Validate
// before Binding is attempted. tls may be nil, in which case the TLS engine
// is built from cfg.Cert and cfg.Key at Binding.
func New(cfg *Config, tls tlsengine.TLSConfig) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		tls:     tls,
		Routes:  router.NewList(),
		Health:  health.New(cfg.AsyncHealthCheckThreadCount),
		Metrics: metrics.New(),
		state:   atomicval.NewValueDefault(Built),
		stopped: make(chan struct{}),
	}
}

func stateEq(a, b State) bool { return a == b }

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state.Load()
}

// Addr returns the bound application listener address, or "" before Binding
// completes. Mainly useful when Listen was configured with port 0.
func (o *Orchestrator) Addr() string {
	if o.ln == nil {
		return ""
	}
	return o.ln.Addr().String()
}

// ListenAndServe finalizes the route table, binds the listener, and runs the
// accept loop until Stopped. It must be called exactly once from the
// controlling goroutine.
func (o *Orchestrator) ListenAndServe() error {
	if !o.state.CompareAndSwap(Built, Binding, stateEq) {
		return ErrAlreadyBound.Error(nil)
	}

	if err := o.cfg.Validate(); err != nil {
		return err
	}

	if o.tls == nil {
		eng := tlsengine.New()
		if err := eng.AddCertificatePairString("", o.cfg.Key, o.cfg.Cert); err != nil {
			return err
		}
		o.tls = eng
	}

	o.Firewall = firewall.New(o.Metrics)
	snapshot := o.Routes.Freeze()

	filter, err := ipfilter.New(o.cfg.IPWhiteList, o.cfg.IPBlackList)
	if err != nil {
		return err
	}
	o.filter = filter

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	pipeline := responsepipeline.New(o.cfg.CORS, o.Metrics)
	limiter := ratelimit.New(bgCtx,
		ratelimit.WithSoftRate(o.cfg.SoftReqPerSec),
		ratelimit.WithHardRate(o.cfg.HardReqPerSec),
		ratelimit.WithBurst(o.cfg.Burst),
		ratelimit.WithIdleTimeout(o.cfg.IdleTimeout.Time()),
	)
	handler := pipeline.Wrap(o.route(snapshot, limiter))

	if o.cfg.RunBackgroundHealthChecks {
		sched := health.NewScheduler(o.Health, o.cfg.HealthCheckInitialDelay.Time(), o.cfg.HealthCheckDelay.Time())
		go sched.Run(bgCtx)
	}

	if o.cfg.ConsoleReporter {
		rep := reporter.NewConsole(o.Metrics, o.cfg.ConsoleReporterInterval.Time())
		go rep.Run(bgCtx)
	}

	if o.cfg.ServeAdminRoutes {
		if err := o.startAdmin(); err != nil {
			return err
		}
		defer o.stopAdmin()
	}

	for {
		if err := o.bindAndServe(handler); err != nil {
			return err
		}

		if o.restartRequested.CompareAndSwap(true, false) {
			o.state.Store(Binding)
			logger.InfoLevel.Logf("server re-entering Binding after restart drain")
			continue
		}

		o.state.Store(Stopped)
		close(o.stopped)
		return nil
	}
}

// bindAndServe binds the TCP listener and blocks in the accept loop until
// the current *http.Server is shut down (by Shutdown or Restart).
func (o *Orchestrator) bindAndServe(handler http.Handler) error {
	raw, err := net.Listen("tcp", o.cfg.Listen)
	if err != nil {
		o.state.Store(Built)
		return ErrBind.Error(err)
	}

	limited := connlimit.New(raw, o.cfg.MaxConnections, o.Metrics)
	filtered := ipfilter.NewListener(limited, o.filter, o.Metrics.ConnectionsFiltered.Inc)
	o.ln = filtered

	o.srv = &http.Server{
		Handler:  handler,
		ErrorLog: log.New(o.Firewall.LogWriter(), "", 0),
	}
	o.srv.TLSConfig = o.tls.TlsConfig("")

	opts := protocol.Options{
		MaxHandlers: o.cfg.WorkerThreadCount,
		AllowH2C:    o.cfg.AllowH2C,
	}
	if err := protocol.Configure(o.srv, opts); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelServe = cancel
	o.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	o.state.Store(Serving)
	logger.InfoLevel.Logf("server entering Serving, bindable=%s", o.cfg.Listen)

	return o.acceptLoop(ctx)
}

func (o *Orchestrator) acceptLoop(ctx context.Context) error {
	backoff := 5 * time.Millisecond

	for {
		tlsLn := tls.NewListener(o.ln, o.srv.TLSConfig)
		err := o.srv.Serve(tlsLn)

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		if ctx.Err() != nil {
			return nil
		}

		logger.ErrorLevel.LogErrorCtxf("accept-loop", err, "accept loop error, retrying in %s", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}

		if backoff < acceptBackoffCap {
			backoff *= 2
			if backoff > acceptBackoffCap {
				backoff = acceptBackoffCap
			}
		}
	}
}

// route composes the rate-limit → router dispatch that runs inside the
// response pipeline, after CORS preflight has already been handled.
func (o *Orchestrator) route(snap *router.Snapshot, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o.Firewall.Observe(r)
		ip := clientIP(r)

		switch limiter.Allow(ip) {
		case ratelimit.HardDenied:
			w.Header().Set("Connection", "close")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		case ratelimit.SoftDenied:
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		result := snap.Match(r.Method, r.URL.Path)

		if result.Matched {
			reqID := uuid.NewString()
			w.Header().Set("X-Request-Id", reqID)
			o.Metrics.RouteHits.WithLabelValues(r.Method, result.Pattern).Inc()

			ctx, cancel := reqcontext.New(r.Context(), result.Params)
			defer cancel()

			defer func() {
				if rec := recover(); rec != nil {
					if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rec)
					}
					logger.ErrorLevel.WithFields(logger.Fields{
						"request_id": reqID,
						"remote":     ip,
					}).Log("handler panic: %v", rec)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			result.Handler(w, r.WithContext(ctx))
			return
		}

		if len(result.AllowedSet) > 0 {
			w.Header().Set("Allow", joinComma(result.AllowedSet))
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		http.NotFound(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// startAdmin builds the admin surface and serves it on its own
// listener, separate from the application listener. A missing AdminListen
// leaves the core serving without an admin surface rather than failing
// startup, since admin routes are themselves optional.
func (o *Orchestrator) startAdmin() error {
	if o.cfg.AdminListen == "" {
		logger.WarnLevel.Logf("serveAdminRoutes is set but adminListen is empty; admin surface not started")
		return nil
	}

	surface := admin.New(
		admin.Info{ServiceName: o.cfg.ServiceName, Version: o.cfg.Version, BuildCommit: o.cfg.BuildCommit},
		o.Metrics,
		o.Health,
		admin.Hooks{
			Ready:   func() bool { return o.State() == Serving },
			Restart: o.Restart,
			Kill:    o.Shutdown,
		},
	)

	ln, err := net.Listen("tcp", o.cfg.AdminListen)
	if err != nil {
		return ErrBind.Error(err)
	}

	o.adminLn = ln
	o.adminSrv = &http.Server{Handler: surface.Handler()}

	go func() {
		if err := o.adminSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorLevel.LogErrorCtxf("admin", err, "admin surface stopped unexpectedly")
		}
	}()

	logger.InfoLevel.Logf("admin surface listening, bindable=%s", o.cfg.AdminListen)
	return nil
}

func (o *Orchestrator) stopAdmin() {
	if o.adminSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = o.adminSrv.Shutdown(ctx)
}

// transitionDraining moves Serving or Binding into Draining exactly once and
// gracefully shuts down the current application server, bounded by
// drain_timeout. A second concurrent caller observes the CompareAndSwap miss
// and returns immediately; the transition is single-shot, never re-entered
// from a close callback.
func (o *Orchestrator) transitionDraining() bool {
	if !o.state.CompareAndSwap(Serving, Draining, stateEq) &&
		!o.state.CompareAndSwap(Binding, Draining, stateEq) {
		return false
	}

	logger.InfoLevel.Logf("server entering Draining, drain_timeout=%s", o.cfg.DrainTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeoutOrDefault(o.cfg.DrainTimeout.Time()))
	defer cancel()

	if o.cancelServe != nil {
		defer o.cancelServe()
	}

	if o.srv != nil {
		if err := o.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorLevel.LogErrorCtxf("shutdown", err, "graceful shutdown did not complete cleanly")
			_ = o.srv.Close()
		}
	}

	return true
}

func drainTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return shutdownTimeout
	}
	return d
}

// Shutdown transitions Serving/Binding→Draining→Stopped exactly once. Used
// for /killkillkill and external termination signals.
func (o *Orchestrator) Shutdown() {
	o.restartRequested.Store(false)
	o.transitionDraining()
}

// Restart transitions Serving/Binding→Draining, then — once the in-flight
// application server has drained — back to Binding, rebinding the listener.
// Used for /restart.
func (o *Orchestrator) Restart() {
	o.restartRequested.Store(true)
	o.transitionDraining()
}

// WaitNotify blocks until SIGINT, SIGTERM, or SIGQUIT, then calls Shutdown.
func (o *Orchestrator) WaitNotify() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	o.Shutdown()
}

// StoppedCh returns a channel closed once the orchestrator has fully
// stopped (as opposed to merely draining for a restart).
func (o *Orchestrator) StoppedCh() <-chan struct{} {
	return o.stopped
}
