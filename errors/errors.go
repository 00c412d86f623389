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

package errors

import "strings"

// Error is the taxonomy-aware error raised by the ingress components: a
// coded failure class plus the chain of underlying causes. It satisfies the
// stdlib error contract, and Unwrap exposes the parents so errors.Is and
// errors.As traverse the chain.
type Error interface {
	error

	// Code returns this error's taxonomy code.
	Code() CodeError

	// IsCode reports whether this error itself carries code.
	IsCode(code CodeError) bool

	// HasCode reports whether this error or any parent carries code.
	HasCode(code CodeError) bool

	// AddParent appends non-nil causes to the chain.
	AddParent(parent ...error)

	// HasParent reports whether at least one cause is attached.
	HasParent() bool

	// GetParent returns the attached causes, outermost first.
	GetParent() []error

	// Unwrap exposes the parents to the stdlib errors package.
	Unwrap() []error
}

type ers struct {
	code    CodeError
	message string
	parents []error
}

func newError(code CodeError, parents []error) *ers {
	e := &ers{code: code, message: code.Message()}
	e.AddParent(parents...)
	return e
}

func (e *ers) Error() string {
	if len(e.parents) == 0 {
		return e.message
	}

	parts := make([]string, 0, len(e.parents)+1)
	parts = append(parts, e.message)
	for _, p := range e.parents {
		parts = append(parts, p.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}

	for _, p := range e.parents {
		if sub, ok := p.(Error); ok && sub.HasCode(code) {
			return true
		}
	}

	return false
}

func (e *ers) AddParent(parent ...error) {
	for _, p := range parent {
		if p == nil {
			continue
		}
		e.parents = append(e.parents, p)
	}
}

func (e *ers) HasParent() bool {
	return len(e.parents) > 0
}

func (e *ers) GetParent() []error {
	out := make([]error, len(e.parents))
	copy(out, e.parents)
	return out
}

func (e *ers) Unwrap() []error {
	return e.parents
}
