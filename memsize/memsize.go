// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memsize provides byte- and bit-count constants and human-readable
// formatting, so bandwidth and buffer-size configuration can be written as
// "200 * memsize.Mbit" instead of a bare magic number.
package memsize

import "fmt"

// Byte count constants, base 1024.
const (
	B  uint64 = 1
	KB        = 1024 * B
	MB        = 1024 * KB
	GB        = 1024 * MB
	TB        = 1024 * GB
)

// Bit count constants, base 1024 to match the byte constants above.
const (
	Bit  uint64 = 1
	Kbit        = 1024 * Bit
	Mbit        = 1024 * Kbit
	Gbit        = 1024 * Mbit
	Tbit        = 1024 * Gbit
)

// Format renders a byte count using the largest unit that keeps the integer
// part non-zero.
func Format(bytes uint64) string {
	return format(bytes, "B", KB, MB, GB, TB)
}

// BitFormat renders a bit count using the largest unit that keeps the
// integer part non-zero.
func BitFormat(bits uint64) string {
	return format(bits, "bit", Kbit, Mbit, Gbit, Tbit)
}

func format(n uint64, unit string, k, m, g, t uint64) string {
	if n == 0 {
		return fmt.Sprintf("0%s", unit)
	}
	switch {
	case n >= t:
		return fmt.Sprintf("%.2fT%s", float64(n)/float64(t), unit)
	case n >= g:
		return fmt.Sprintf("%.2fG%s", float64(n)/float64(g), unit)
	case n >= m:
		return fmt.Sprintf("%.2fM%s", float64(n)/float64(m), unit)
	case n >= k:
		return fmt.Sprintf("%.2fK%s", float64(n)/float64(k), unit)
	default:
		return fmt.Sprintf("%.2f%s", float64(n), unit)
	}
}
