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

// Package ratelimit implements per-remote-IP admission with two thresholds:
// exceeding the soft bucket yields 429 but keeps the connection; exceeding
// the hard bucket in the same request additionally closes the connection.
// A shared global bucket covers requests with no identifiable IP; every
// other IP gets its own entry on first sight, and the per-IP map is trimmed
// only by the periodic idle sweep.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 16

// Verdict is the outcome of admitting one request from an IP.
type Verdict int

const (
	// Admitted means the request proceeds normally.
	Admitted Verdict = iota
	// SoftDenied means the server responds 429 but keeps the connection.
	SoftDenied
	// HardDenied means the server responds 429 and then closes the connection.
	HardDenied
)

type entry struct {
	soft     *rate.Limiter
	hard     *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Limiter holds the per-IP soft/hard token buckets plus a global fallback
// bucket used when Allow is given an empty IP.
type Limiter struct {
	shards [shardCount]*shard

	softRate rate.Limit
	hardRate rate.Limit
	burst    int

	idleTimeout time.Duration

	global *entry

	onSoftDenied func(ip string)
	onHardDenied func(ip string)
}

// Option configures a Limiter at construction, in the functional-options
// style used throughout this module's admission components.
type Option func(*Limiter)

func WithSoftRate(perSecond float64) Option {
	return func(l *Limiter) { l.softRate = rate.Limit(perSecond) }
}

func WithHardRate(perSecond float64) Option {
	return func(l *Limiter) { l.hardRate = rate.Limit(perSecond) }
}

func WithBurst(burst int) Option {
	return func(l *Limiter) { l.burst = burst }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.idleTimeout = d }
}

func WithOnSoftDenied(fn func(ip string)) Option {
	return func(l *Limiter) { l.onSoftDenied = fn }
}

func WithOnHardDenied(fn func(ip string)) Option {
	return func(l *Limiter) { l.onHardDenied = fn }
}

// New constructs a Limiter and starts its background idle-eviction sweep,
// stopped when ctx is cancelled.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		softRate:    2,
		hardRate:    4,
		burst:       2,
		idleTimeout: 5 * time.Minute,
	}

	for _, o := range opts {
		o(l)
	}

	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	l.global = l.newEntry()

	go l.sweep(ctx)

	return l
}

// newEntry builds the soft/hard bucket pair. The hard bucket's capacity
// scales with the hard/soft rate ratio so the soft threshold engages first:
// equal capacities would close the connection on the same request that
// produced the first 429.
func (l *Limiter) newEntry() *entry {
	hardBurst := l.burst
	if l.softRate > 0 && l.hardRate > l.softRate {
		hardBurst = int(float64(l.burst) * float64(l.hardRate) / float64(l.softRate))
	}

	return &entry{
		soft:     rate.NewLimiter(l.softRate, l.burst),
		hard:     rate.NewLimiter(l.hardRate, hardBurst),
		lastSeen: time.Now(),
	}
}

func (l *Limiter) shardFor(ip string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return l.shards[h.Sum32()%shardCount]
}

// Allow evaluates one request from ip. Hard wins if both thresholds are
// exhausted on the same request.
func (l *Limiter) Allow(ip string) Verdict {
	if ip == "" {
		return l.allowGlobal()
	}

	s := l.shardFor(ip)

	s.mu.Lock()
	e, ok := s.entries[ip]
	if !ok {
		e = l.newEntry()
		s.entries[ip] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()

	hardOK := e.hard.Allow()
	softOK := e.soft.Allow()

	switch {
	case !hardOK:
		if l.onHardDenied != nil {
			l.onHardDenied(ip)
		}
		return HardDenied
	case !softOK:
		if l.onSoftDenied != nil {
			l.onSoftDenied(ip)
		}
		return SoftDenied
	default:
		return Admitted
	}
}

func (l *Limiter) allowGlobal() Verdict {
	hardOK := l.global.hard.Allow()
	softOK := l.global.soft.Allow()

	switch {
	case !hardOK:
		return HardDenied
	case !softOK:
		return SoftDenied
	default:
		return Admitted
	}
}

// sweep evicts entries idle past idleTimeout, checking every idleTimeout/2
// (or every minute when that is zero). It is the only eviction path:
// inserting a new IP does not evict, and an entry's token level is not
// consulted before it is removed.
func (l *Limiter) sweep(ctx context.Context) {
	interval := l.idleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, s := range l.shards {
				s.mu.Lock()
				for ip, e := range s.entries {
					if now.Sub(e.lastSeen) > l.idleTimeout {
						delete(s.entries, ip)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// Len returns the total number of tracked IPs across all shards, for tests.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
