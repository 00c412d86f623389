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

package duration_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/lucmarin/ingressd/duration"
)

var _ = Describe("Duration", func() {
	It("parses a Go duration string", func() {
		d, err := duration.Parse("90s")
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Time()).To(Equal(90 * time.Second))
	})

	It("parses a bare integer as seconds", func() {
		d, err := duration.Parse("30")
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Time()).To(Equal(30 * time.Second))
	})

	It("rejects garbage", func() {
		_, err := duration.Parse("soon")
		Expect(err).To(HaveOccurred())
	})

	It("unmarshals both forms from JSON", func() {
		var cfg struct {
			A duration.Duration `json:"a"`
			B duration.Duration `json:"b"`
		}
		Expect(json.Unmarshal([]byte(`{"a":"2m","b":45}`), &cfg)).To(Succeed())
		Expect(cfg.A.Time()).To(Equal(2 * time.Minute))
		Expect(cfg.B.Time()).To(Equal(45 * time.Second))
	})

	It("unmarshals both forms from YAML", func() {
		var cfg struct {
			A duration.Duration `yaml:"a"`
			B duration.Duration `yaml:"b"`
		}
		Expect(yaml.Unmarshal([]byte("a: 2m\nb: 45\n"), &cfg)).To(Succeed())
		Expect(cfg.A.Time()).To(Equal(2 * time.Minute))
		Expect(cfg.B.Time()).To(Equal(45 * time.Second))
	})
})
