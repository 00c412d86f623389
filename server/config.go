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

package server

import (
	"net"

	"github.com/go-playground/validator/v10"

	"github.com/lucmarin/ingressd/duration"
	"github.com/lucmarin/ingressd/responsepipeline"
)

// Config is the configuration object the orchestrator consumes at
// Built→Binding. The route table is registered separately on the
// orchestrator's Routes list, and is the last thing finalized at Binding.
type Config struct {
	// Listen is a host:port pair; port 0 asks the OS for an ephemeral port.
	Listen string `validate:"required"`

	// Acceptor/worker sizing. Goroutines are scheduled by the runtime, so
	// BossThreadCount and WorkerNameFormat are carried for configuration
	// compatibility with deployments that tune them; WorkerThreadCount bounds
	// the number of concurrently active HTTP/2 handlers per connection.
	BossThreadCount   int    `validate:"omitempty,gte=0,lte=2"`
	WorkerThreadCount int    `validate:"omitempty,gte=0"`
	WorkerNameFormat  string

	MaxConnections int64 `validate:"required,gt=0"`

	IPWhiteList []string
	IPBlackList []string

	SoftReqPerSec float64 `validate:"required,gt=0"`
	HardReqPerSec float64 `validate:"required,gt=0"`
	Burst         int     `validate:"required,gt=0"`
	IdleTimeout   duration.Duration

	// Cert and Key hold PEM-encoded TLS material, consumed at Binding when no
	// TLSConfig was handed to New.
	Cert string `validate:"required"`
	Key  string `validate:"required"`

	AllowH2C bool

	CORS responsepipeline.CORSConfig

	ServiceName string `validate:"required"`
	Version     string
	BuildCommit string

	ServeAdminRoutes            bool
	AdminListen                 string `validate:"omitempty,hostname_port"`
	RunBackgroundHealthChecks   bool
	AsyncHealthCheckThreadCount int
	HealthCheckInitialDelay     duration.Duration
	HealthCheckDelay            duration.Duration

	// Reporter toggles. ConsoleReporter is wired to a logger-backed
	// periodic metrics dump; Slf4jReporter and JMXReporter are carried as
	// configuration surface only — see reporter package doc and DESIGN.md.
	ConsoleReporter         bool
	ConsoleReporterInterval duration.Duration
	Slf4jReporter           bool
	Slf4jReporterInterval   duration.Duration
	JMXReporter             bool
	JMXReporterInterval     duration.Duration

	DrainTimeout duration.Duration
}

// Validate runs struct-tag validation over the config, surfacing a
// ConfigError on the first violation.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return ErrConfig.Error(err)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return ErrConfig.Error(err)
	}
	return nil
}
