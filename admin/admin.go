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

// Package admin is the metrics-and-health surface: /info /metrics /health
// /ping /ready /restart /killkillkill, served on a dedicated gin.Engine
// separate from the application router. Framework conveniences (JSON
// binding, grouped routes) are a genuine fit here, where no
// first-match/405 contract applies.
//
// /restart and /killkillkill carry no built-in authentication; operators are
// expected to restrict them via the IP allow-list.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucmarin/ingressd/health"
	"github.com/lucmarin/ingressd/metrics"
)

// Info is the static service identity rendered by GET /info.
type Info struct {
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	BuildCommit string `json:"buildCommit"`
}

// Hooks are the orchestrator callbacks the admin surface drives. Admin has
// no dependency on the server package to avoid an import cycle; the
// orchestrator supplies these closures when it builds the Surface.
type Hooks struct {
	// Ready reports whether the orchestrator is Serving and not draining.
	Ready func() bool
	// Restart transitions the orchestrator to Draining and, after drain,
	// back to Binding.
	Restart func()
	// Kill transitions the orchestrator to Draining then Stopped.
	Kill func()
}

// Surface wires the admin endpoints onto a gin.Engine.
type Surface struct {
	engine *gin.Engine
	info   Info
	mtr    *metrics.Registry
	health *health.Registry
	hooks  Hooks
}

// New builds a Surface. gin runs in release mode: this is an embedded admin
// surface, not a development console.
func New(info Info, mtr *metrics.Registry, reg *health.Registry, hooks Hooks) *Surface {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Surface{engine: e, info: info, mtr: mtr, health: reg, hooks: hooks}
	s.register()
	return s
}

// Handler returns the admin surface as an http.Handler, for mounting on a
// listener of its own.
func (s *Surface) Handler() http.Handler {
	return s.engine
}

func (s *Surface) register() {
	s.engine.GET("/info", s.handleInfo)
	s.engine.GET("/metrics", s.handleMetrics)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ping", s.handlePing)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/restart", s.handleRestart)
	s.engine.GET("/killkillkill", s.handleKill)
}

func (s *Surface) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.info)
}

// handleMetrics renders the registry as Prometheus exposition text when the
// Accept header is exactly "text/plain" or the query carries
// format=prometheus, otherwise as a flat JSON dump for operator tooling.
func (s *Surface) handleMetrics(c *gin.Context) {
	accept := c.GetHeader("Accept")
	if accept == "text/plain" || c.Query("format") == "prometheus" {
		promhttp.HandlerFor(s.mtr.Prometheus(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusOK, s.mtr.Dump())
}

type checkView struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Surface) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"healthy": true, "checks": []checkView{}})
		return
	}

	healthy, results := s.health.RunAll(c.Request.Context())

	views := make([]checkView, 0, len(results))
	for _, r := range results {
		views = append(views, checkView{Name: r.Name, Healthy: r.Healthy, Reason: r.Reason})
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"healthy": healthy, "checks": views})
}

func (s *Surface) handlePing(c *gin.Context) {
	c.String(http.StatusOK, "PONG")
}

func (s *Surface) handleReady(c *gin.Context) {
	if s.hooks.Ready != nil && s.hooks.Ready() {
		c.String(http.StatusOK, "ready")
		return
	}
	c.String(http.StatusServiceUnavailable, "not ready")
}

func (s *Surface) handleRestart(c *gin.Context) {
	if s.hooks.Restart != nil {
		go s.hooks.Restart()
	}
	c.String(http.StatusOK, "restarting")
}

func (s *Surface) handleKill(c *gin.Context) {
	if s.hooks.Kill != nil {
		go s.hooks.Kill()
	}
	c.String(http.StatusOK, "stopping")
}
