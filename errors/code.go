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

// Package errors is the typed error taxonomy shared by the ingress
// components. Each package owns a range of numeric codes (see modules.go),
// registers a message function for that range at init, and raises errors
// through CodeError.Error so a failure carries both its taxonomy code and
// the underlying cause.
package errors

// CodeError is a numeric error code identifying one failure class within a
// package's code range.
type CodeError uint16

const (
	// UnknownError is the fallback code when a failure cannot be classified.
	UnknownError CodeError = 0

	// UnknownMessage is the message served for codes with no registration.
	UnknownMessage = "unknown error"
)

// Message resolves a registered code to its human-readable message.
type Message func(code CodeError) string

// idMsgFct maps a package's min code to its message function. Registration
// happens from package init functions only; reads follow, so no lock.
var idMsgFct = make(map[CodeError]Message)

// RegisterIdFctMessage registers the message function covering the code
// range starting at minCode. Codes resolve to the function with the highest
// min not exceeding them.
func RegisterIdFctMessage(minCode CodeError, fct Message) {
	idMsgFct[minCode] = fct
}

// NewCodeError wraps a raw code value.
func NewCodeError(code uint16) CodeError {
	return CodeError(code)
}

// Message returns the registered message for c, or UnknownMessage if no
// registration covers it or the registered function declines it.
func (c CodeError) Message() string {
	if c == UnknownError {
		return UnknownMessage
	}

	var (
		best CodeError
		fct  Message
	)

	for min, f := range idMsgFct {
		if min <= c && min >= best {
			best, fct = min, f
		}
	}

	if fct != nil {
		if m := fct(c); m != "" {
			return m
		}
	}

	return UnknownMessage
}

// Error builds an Error carrying c's registered message and any non-nil
// parent causes.
func (c CodeError) Error(p ...error) Error {
	return newError(c, p)
}

// ErrorParent is Error with the cause made explicit at the call site.
func (c CodeError) ErrorParent(p ...error) Error {
	return newError(c, p)
}
