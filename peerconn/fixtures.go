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
package peerconn

import (
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/core"
)

type noopEvents struct{}

func (e noopEvents) ConnClosed(*Conn) {}

// noopDeadline wraps a net.Conn which does not support deadlines (e.g.
// net.Pipe) and makes it accept them as no-ops.
type noopDeadline struct {
	net.Conn
}

func (n noopDeadline) SetDeadline(t time.Time) error      { return nil }
func (n noopDeadline) SetReadDeadline(t time.Time) error  { return nil }
func (n noopDeadline) SetWriteDeadline(t time.Time) error { return nil }

// PipeFixture returns Conns for both sides of a live connection for testing.
func PipeFixture(config Config, infoHash core.InfoHash) (local *Conn, remote *Conn, cleanup func()) {
	nc1, nc2 := net.Pipe()

	h := HandshakerFixture(config)

	local, err := h.newConn(noopDeadline{nc1}, core.PeerIDFixture(), infoHash, false)
	if err != nil {
		panic(err)
	}
	local.Start()

	remote, err = h.newConn(noopDeadline{nc2}, core.PeerIDFixture(), infoHash, true)
	if err != nil {
		panic(err)
	}
	remote.Start()

	return local, remote, func() {
		nc1.Close()
		nc2.Close()
	}
}

// Fixture returns a single local Conn for testing.
func Fixture() (*Conn, func()) {
	local, _, cleanup := PipeFixture(Config{}, core.InfoHashFixture())
	return local, cleanup
}

// HandshakerFixture returns a Handshaker for testing.
func HandshakerFixture(config Config) *Handshaker {
	return NewHandshaker(
		config,
		tally.NewTestScope("", nil),
		clock.New(),
		core.PeerIDFixture(),
		noopEvents{},
		zap.NewNop().Sugar())
}

// ConfigFixture returns a Config for testing.
func ConfigFixture() Config {
	return Config{}.applyDefaults()
}
