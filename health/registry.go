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

// Package health is the registry of user-supplied health checks consulted by
// the admin surface's /health endpoint and, optionally, by a background
// scheduler. Each check is run on demand; the registry bounds concurrency to
// a small dedicated pool sized by asyncHealthCheckThreadCount rather than
// spawning one goroutine per check.
package health

import (
	"context"
	"sync"
)

// Check is the contract user code implements: a named probe that returns nil
// when healthy or a non-nil error carrying the unhealthy reason.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function and a name into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Result is the outcome of running one Check.
type Result struct {
	Name    string
	Healthy bool
	Reason  string
}

// Registry holds the set of registered checks and runs them bounded by pool
// concurrent goroutines at a time.
type Registry struct {
	mu     sync.RWMutex
	checks []Check
	pool   int
}

// New returns an empty Registry. pool <= 0 defaults to 4 concurrent checks.
func New(pool int) *Registry {
	if pool <= 0 {
		pool = 4
	}
	return &Registry{pool: pool}
}

// Register adds a check. Safe to call concurrently with RunAll.
func (r *Registry) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checks)
}

// RunAll executes every registered check concurrently, bounded by the
// registry's pool size, and reports whether all checks passed.
func (r *Registry) RunAll(ctx context.Context) (bool, []Result) {
	r.mu.RLock()
	checks := make([]Check, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	results := make([]Result, len(checks))
	sem := make(chan struct{}, r.pool)
	var wg sync.WaitGroup

	for i, c := range checks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c Check) {
			defer wg.Done()
			defer func() { <-sem }()

			err := c.Check(ctx)
			if err != nil {
				results[i] = Result{Name: c.Name(), Healthy: false, Reason: err.Error()}
				return
			}
			results[i] = Result{Name: c.Name(), Healthy: true}
		}(i, c)
	}

	wg.Wait()

	healthy := true
	for _, res := range results {
		if !res.Healthy {
			healthy = false
			break
		}
	}

	return healthy, results
}
