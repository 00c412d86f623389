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

// Package atomicval is a small generic atomic value box, used where the
// stdlib sync/atomic.Value's "consistent concrete type" rule is inconvenient
// to satisfy (the server lifecycle state).
package atomicval

import "sync"

// Value holds a T behind a mutex. It is safe for concurrent use.
type Value[T any] struct {
	mu  sync.RWMutex
	val T
}

// NewValue returns an empty Value; Load returns the zero value of T until
// Store or Swap is called.
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// NewValueDefault returns a Value pre-populated with def.
func NewValueDefault[T any](def T) *Value[T] {
	return &Value[T]{val: def}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val
}

// Store sets the value unconditionally.
func (v *Value[T]) Store(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = val
}

// Swap stores val and returns the previous value.
func (v *Value[T]) Swap(val T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	old := v.val
	v.val = val
	return old
}

// CompareAndSwap stores new only if the current value equals old, per a
// caller-supplied equality function (T may not be comparable).
func (v *Value[T]) CompareAndSwap(old, new T, eq func(a, b T) bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !eq(v.val, old) {
		return false
	}

	v.val = new
	return true
}
