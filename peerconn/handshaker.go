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
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/bandwidth"
	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/wire"
)

// PendingConn represents a connection that has sent or received a handshake
// but has not yet been promoted to a full Conn.
type PendingConn struct {
	handshake wire.Handshake
	nc        net.Conn
}

// PeerID returns the remote peer id named in the handshake.
func (pc *PendingConn) PeerID() core.PeerID { return pc.handshake.PeerID }

// InfoHash returns the torrent info hash named in the handshake.
func (pc *PendingConn) InfoHash() core.InfoHash { return pc.handshake.InfoHash }

// Close closes the underlying socket without completing the handshake.
func (pc *PendingConn) Close() { pc.nc.Close() }

// Handshaker establishes peer connections by exchanging the fixed-length
// BitTorrent handshake, then promotes the result into a Conn.
type Handshaker struct {
	config    Config
	stats     tally.Scope
	clk       clock.Clock
	peerID    core.PeerID
	events    Events
	logger    *zap.SugaredLogger
	bandwidth func() (*bandwidth.Limiter, error)
}

// NewHandshaker creates a Handshaker that identifies itself as peerID in
// every handshake it sends.
func NewHandshaker(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peerID core.PeerID,
	events Events,
	logger *zap.SugaredLogger) *Handshaker {

	config = config.applyDefaults()
	return &Handshaker{
		config: config,
		stats:  stats.Tagged(map[string]string{"module": "peerconn"}),
		clk:    clk,
		peerID: peerID,
		events: events,
		logger: logger,
		bandwidth: func() (*bandwidth.Limiter, error) {
			return bandwidth.NewLimiter(config.Bandwidth)
		},
	}
}

// Accept upgrades a raw inbound connection into a PendingConn by reading the
// remote peer's handshake. The local handshake is not yet sent; callers
// decide whether to Establish only after validating the info hash is for a
// torrent they are serving.
func (h *Handshaker) Accept(nc net.Conn) (*PendingConn, error) {
	if err := nc.SetDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %s", err)
	}
	hs, err := wire.ReadHandshake(nc)
	if err != nil {
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	return &PendingConn{handshake: hs, nc: nc}, nil
}

// Establish completes an inbound handshake by sending our own and returns a
// fully running Conn.
func (h *Handshaker) Establish(pc *PendingConn) (*Conn, error) {
	hs := wire.Handshake{InfoHash: pc.handshake.InfoHash, PeerID: h.peerID}
	if err := pc.nc.SetWriteDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set write deadline: %s", err)
	}
	if err := wire.WriteHandshake(pc.nc, hs); err != nil {
		return nil, fmt.Errorf("write handshake: %s", err)
	}
	return h.newConn(pc.nc, pc.handshake.PeerID, pc.handshake.InfoHash, true)
}

// Initialize dials addr, performs the full outbound handshake exchange for
// infoHash, and returns a fully running Conn.
func (h *Handshaker) Initialize(peerID core.PeerID, addr string, infoHash core.InfoHash) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, h.config.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	c, err := h.fullHandshake(nc, peerID, infoHash)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (h *Handshaker) fullHandshake(nc net.Conn, peerID core.PeerID, infoHash core.InfoHash) (*Conn, error) {
	if err := nc.SetDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %s", err)
	}
	out := wire.Handshake{InfoHash: infoHash, PeerID: h.peerID}
	if err := wire.WriteHandshake(nc, out); err != nil {
		return nil, fmt.Errorf("write handshake: %s", err)
	}
	in, err := wire.ReadHandshake(nc)
	if err != nil {
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	if in.InfoHash != infoHash {
		return nil, errors.New("unexpected info hash in remote handshake")
	}
	if in.PeerID != peerID {
		return nil, errors.New("unexpected peer id in remote handshake")
	}
	return h.newConn(nc, peerID, infoHash, false)
}

func (h *Handshaker) newConn(nc net.Conn, peerID core.PeerID, infoHash core.InfoHash, openedByRemote bool) (*Conn, error) {
	bw, err := h.bandwidth()
	if err != nil {
		return nil, fmt.Errorf("bandwidth: %s", err)
	}
	return newConn(
		h.config,
		h.stats,
		h.clk,
		bw,
		h.events,
		nc,
		h.peerID,
		peerID,
		infoHash,
		openedByRemote,
		h.logger)
}
