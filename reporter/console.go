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

// Package reporter periodically surfaces the metrics registry to an
// operator-facing sink. The core ships one sink, consoleReporter, logging a
// metrics.Registry.Dump() snapshot on an interval through the shared logger;
// slf4jReporter and jmxReporter remain configuration toggles with no sink
// here: slf4j and JMX are JVM concepts with no Go equivalent, so the fields
// are carried for config compatibility only. See DESIGN.md.
package reporter

import (
	"context"
	"time"

	"github.com/lucmarin/ingressd/logger"
	"github.com/lucmarin/ingressd/metrics"
)

// ConsoleReporter logs a metrics snapshot on a fixed interval.
type ConsoleReporter struct {
	mtr      *metrics.Registry
	interval time.Duration
}

// NewConsole builds a ConsoleReporter bound to mtr. interval <= 0 defaults to
// 60s.
func NewConsole(mtr *metrics.Registry, interval time.Duration) *ConsoleReporter {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ConsoleReporter{mtr: mtr, interval: interval}
}

// Run blocks, logging a snapshot every interval until ctx is cancelled.
func (c *ConsoleReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.InfoLevel.WithFields(logger.Fields{
				"component": "console-reporter",
				"snapshot":  c.mtr.Dump(),
			}).Log("metrics snapshot")
		}
	}
}
