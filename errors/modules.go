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

// Package-id offsets for the ingress core. Each component owns a 20-wide
// range so new error codes can be added without colliding with a neighbor.
const (
	MinPkgCertificate  = 100
	MinPkgConnLimit    = 120
	MinPkgIPFilter     = 140
	MinPkgFirewall     = 160
	MinPkgRateLimit    = 180
	MinPkgProtocol     = 200
	MinPkgRouter       = 220
	MinPkgResponse     = 240
	MinPkgServer       = 260
	MinPkgAdmin        = 280
	MinPkgLogger       = 300
	MinPkgHealth       = 320
	MinPkgReporter     = 340

	MinAvailable = 400
)
