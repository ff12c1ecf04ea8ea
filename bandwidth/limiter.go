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

// Package bandwidth implements token-bucket egress/ingress rate limiting for
// peer connections, so a single greedy peer cannot starve the others sharing
// the process's network link.
package bandwidth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter. Rates are expressed in bits per second to
// match how link capacity is usually advertised; TokenSize is the number of
// bits one bucket token represents, trading reservation granularity against
// scheduling overhead.
type Config struct {
	EgressBitsPerSec  uint64 `yaml:"egress_bits_per_sec"`
	IngressBitsPerSec uint64 `yaml:"ingress_bits_per_sec"`
	TokenSize         int64  `yaml:"token_size"`
	Enable            bool   `yaml:"enable"`
}

func (c Config) applyDefaults() Config {
	if c.TokenSize == 0 {
		c.TokenSize = 1
	}
	return c
}

// Limiter enforces independent egress and ingress byte budgets. A disabled
// Limiter has nil egress/ingress fields and every Reserve call is a no-op.
type Limiter struct {
	config Config

	mu              sync.Mutex
	egress          *rate.Limiter
	ingress         *rate.Limiter
	adjustedEgress  uint64
	adjustedIngress uint64
}

// NewLimiter constructs a Limiter from config. It is an error for either
// direction's bits-per-second to be non-positive, or for TokenSize (once
// defaulted) to be non-positive.
func NewLimiter(config Config) (*Limiter, error) {
	config = config.applyDefaults()
	if config.EgressBitsPerSec == 0 {
		return nil, errors.New("bandwidth: egress_bits_per_sec must be > 0")
	}
	if config.IngressBitsPerSec == 0 {
		return nil, errors.New("bandwidth: ingress_bits_per_sec must be > 0")
	}
	if config.TokenSize <= 0 {
		return nil, errors.New("bandwidth: token_size must be > 0")
	}

	l := &Limiter{config: config}
	if !config.Enable {
		return l, nil
	}
	l.egress = newTokenBucket(config.EgressBitsPerSec, config.TokenSize)
	l.ingress = newTokenBucket(config.IngressBitsPerSec, config.TokenSize)
	return l, nil
}

func newTokenBucket(bps uint64, tokenSize int64) *rate.Limiter {
	tokensPerSec := int64(bps) / tokenSize
	if tokensPerSec <= 0 {
		tokensPerSec = 1
	}
	return rate.NewLimiter(rate.Limit(tokensPerSec), int(tokensPerSec))
}

// ReserveEgress blocks until nbytes of egress budget is available, or
// returns an error if nbytes can never fit in the bucket.
func (l *Limiter) ReserveEgress(nbytes int64) error {
	return l.reserve(l.egress, nbytes)
}

// ReserveIngress blocks until nbytes of ingress budget is available, or
// returns an error if nbytes can never fit in the bucket.
func (l *Limiter) ReserveIngress(nbytes int64) error {
	return l.reserve(l.ingress, nbytes)
}

func (l *Limiter) reserve(b *rate.Limiter, nbytes int64) error {
	if b == nil {
		return nil
	}

	l.mu.Lock()
	tokenSize := l.config.TokenSize
	l.mu.Unlock()

	tokens := (nbytes * 8) / tokenSize
	if tokens == 0 {
		tokens = 1
	}

	r := b.ReserveN(time.Now(), int(tokens))
	if !r.OK() {
		return fmt.Errorf("bandwidth: %d bytes exceeds bucket capacity", nbytes)
	}
	time.Sleep(r.Delay())
	return nil
}

// Adjust rescales both directions' budgets to their configured rate divided
// by denom, with a floor of 1 bit/sec. It is used to throttle back when the
// process opens many simultaneous connections sharing one physical link.
func (l *Limiter) Adjust(denom int) error {
	if denom <= 0 {
		return fmt.Errorf("bandwidth: denom must be > 0, got %d", denom)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	newEgress := l.config.EgressBitsPerSec / uint64(denom)
	if newEgress == 0 {
		newEgress = 1
	}
	newIngress := l.config.IngressBitsPerSec / uint64(denom)
	if newIngress == 0 {
		newIngress = 1
	}

	if l.egress != nil {
		l.egress = newTokenBucket(newEgress, l.config.TokenSize)
	}
	if l.ingress != nil {
		l.ingress = newTokenBucket(newIngress, l.config.TokenSize)
	}
	l.adjustedEgress = newEgress
	l.adjustedIngress = newIngress
	return nil
}

// EgressLimit returns the currently configured egress rate in bits/sec,
// reflecting the most recent Adjust call if any.
func (l *Limiter) EgressLimit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adjustedEgress != 0 {
		return int64(l.adjustedEgress)
	}
	return int64(l.config.EgressBitsPerSec)
}

// IngressLimit returns the currently configured ingress rate in bits/sec,
// reflecting the most recent Adjust call if any.
func (l *Limiter) IngressLimit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adjustedIngress != 0 {
		return int64(l.adjustedIngress)
	}
	return int64(l.config.IngressBitsPerSec)
}
