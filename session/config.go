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

// Package session implements the central coordinating task of the peer
// engine: it owns the piece-status vector, every peer record, the
// choke/unchoke policy, and rarest-first piece selection, and dispatches
// decisions to per-peer handlers over request/reply channels.
package session

import (
	"time"

	"github.com/lindris/peerengine/peerconn"
)

// Config is the Session configuration.
type Config struct {

	// ChokeInterval is the tick period of the choke/unchoke policy.
	ChokeInterval time.Duration `yaml:"choke_interval"`

	// KeepAliveInterval is the per-peer keep-alive timer period.
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`

	// StatsInterval is the per-peer rate-sampling timer period.
	StatsInterval time.Duration `yaml:"stats_interval"`

	// MaxUnchoked bounds how many peers may be unchoked by rank, not
	// counting the optimistic unchoke slot.
	MaxUnchoked int `yaml:"max_unchoked"`

	// MaxOptimistic is the number of optimistic-unchoke slots.
	MaxOptimistic int `yaml:"max_optimistic"`

	// MaxOptimisticRounds is how many consecutive choke ticks an optimistic
	// pick is kept before a new one is chosen.
	MaxOptimisticRounds int `yaml:"max_optimistic_rounds"`

	// MaxNotInterested bounds inbound listener accepts: new connections are
	// only accepted while fewer than this many connected peers are
	// disinterested in us.
	MaxNotInterested int `yaml:"max_not_interested"`

	// PeerCmdBufferSize is defaulted here but not read anywhere else:
	// handlers' PeerCmd decision requests travel over the event loop's
	// unbuffered channel, so this value sizes no queue.
	PeerCmdBufferSize int `yaml:"peer_cmd_buffer_size"`

	// ListenPort is the compiled-in port the session listens on for inbound
	// peer connections.
	ListenPort int `yaml:"listen_port"`

	Conn peerconn.Config `yaml:"conn"`
}

func (c Config) applyDefaults() Config {
	if c.ChokeInterval == 0 {
		c.ChokeInterval = 10 * time.Second
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 120 * time.Second
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 10 * time.Second
	}
	if c.MaxUnchoked == 0 {
		c.MaxUnchoked = 10
	}
	if c.MaxOptimistic == 0 {
		c.MaxOptimistic = 1
	}
	if c.MaxOptimisticRounds == 0 {
		c.MaxOptimisticRounds = 3
	}
	if c.MaxNotInterested == 0 {
		c.MaxNotInterested = 4
	}
	if c.PeerCmdBufferSize == 0 {
		c.PeerCmdBufferSize = 64
	}
	if c.ListenPort == 0 {
		c.ListenPort = 6881
	}
	return c
}
