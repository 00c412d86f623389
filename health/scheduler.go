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

package health

import (
	"context"
	"sync"
	"time"

	"github.com/lucmarin/ingressd/logger"
)

// Scheduler runs a Registry's checks on a timer: first after initialDelay,
// then every delay thereafter (both default to 60s). It only logs
// unhealthy results; /health still runs the registry live on each request.
type Scheduler struct {
	reg          *Registry
	initialDelay time.Duration
	delay        time.Duration

	mu   sync.RWMutex
	last []Result
}

// NewScheduler binds a Scheduler to reg. Zero delays fall back to 60s/60s.
func NewScheduler(reg *Registry, initialDelay, delay time.Duration) *Scheduler {
	if initialDelay <= 0 {
		initialDelay = 60 * time.Second
	}
	if delay <= 0 {
		delay = 60 * time.Second
	}
	return &Scheduler{reg: reg, initialDelay: initialDelay, delay: delay}
}

// Run blocks, executing the registry on the configured schedule until ctx is
// cancelled. Intended to be started in its own goroutine at Binding→Serving.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.delay)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	healthy, results := s.reg.RunAll(ctx)

	s.mu.Lock()
	s.last = results
	s.mu.Unlock()

	if !healthy {
		for _, r := range results {
			if !r.Healthy {
				logger.WarnLevel.Logf("background health check %q unhealthy: %s", r.Name, r.Reason)
			}
		}
	}
}

// Last returns the results from the most recent scheduled run, or nil if the
// scheduler has not ticked yet.
func (s *Scheduler) Last() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	out := make([]Result, len(s.last))
	copy(out, s.last)
	return out
}
