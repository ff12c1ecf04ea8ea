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
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/bandwidth"
	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/wire"
)

// Events defines the callbacks a Conn's owner receives.
type Events interface {
	ConnClosed(*Conn)
}

// Conn manages the wire protocol exchange with a single remote peer over one
// TCP connection, for one torrent. The handshake must already have
// completed before a Conn is constructed; all further traffic is
// length-prefixed frames.
type Conn struct {
	peerID      core.PeerID
	localPeerID core.PeerID
	infoHash    core.InfoHash
	createdAt   time.Time
	bandwidth   *bandwidth.Limiter

	events Events

	nc     net.Conn
	config Config
	clk    clock.Clock
	stats  tally.Scope

	openedByRemote bool

	startOnce sync.Once

	sender   chan wire.Frame
	receiver chan wire.Frame

	closed *atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	logger *zap.SugaredLogger
}

func newConn(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	bw *bandwidth.Limiter,
	events Events,
	nc net.Conn,
	localPeerID core.PeerID,
	remotePeerID core.PeerID,
	infoHash core.InfoHash,
	openedByRemote bool,
	logger *zap.SugaredLogger) (*Conn, error) {

	// Clear handshake deadlines; once a Conn exists it manages its own
	// lifetime via Close, not socket timeouts.
	if err := nc.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("set deadline: %s", err)
	}

	c := &Conn{
		peerID:         remotePeerID,
		localPeerID:    localPeerID,
		infoHash:       infoHash,
		createdAt:      clk.Now(),
		bandwidth:      bw,
		events:         events,
		nc:             nc,
		config:         config,
		clk:            clk,
		stats:          stats,
		openedByRemote: openedByRemote,
		sender:         make(chan wire.Frame, config.SenderBufferSize),
		receiver:       make(chan wire.Frame, config.ReceiverBufferSize),
		closed:         atomic.NewBool(false),
		done:           make(chan struct{}),
		logger:         logger,
	}
	return c, nil
}

// Start begins reading and writing frames on c. Once started, c closes
// itself on the first read or write error.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.readLoop()
		go c.writeLoop()
	})
}

// PeerID returns the remote peer's id.
func (c *Conn) PeerID() core.PeerID { return c.peerID }

// InfoHash returns the torrent this connection is serving.
func (c *Conn) InfoHash() core.InfoHash { return c.infoHash }

// CreatedAt returns when the Conn was established.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// OpenedByRemote reports whether the remote peer dialed us, as opposed to
// us dialing them.
func (c *Conn) OpenedByRemote() bool { return c.openedByRemote }

func (c *Conn) String() string {
	return fmt.Sprintf("Conn(peer=%s, hash=%s, opened_by_remote=%t)",
		c.peerID, c.infoHash, c.openedByRemote)
}

// Send queues f for transmission. Returns an error if c is closed or the
// send buffer is full.
func (c *Conn) Send(f wire.Frame) error {
	select {
	case <-c.done:
		return errors.New("conn closed")
	case c.sender <- f:
		return nil
	default:
		c.stats.Tagged(map[string]string{
			"dropped_frame_kind": f.Kind.String(),
		}).Counter("dropped_frames").Inc(1)
		return errors.New("send buffer full")
	}
}

// Receiver returns the channel of inbound frames. It is closed when the
// connection is closed.
func (c *Conn) Receiver() <-chan wire.Frame { return c.receiver }

// Close starts c's shutdown sequence. Safe to call multiple times.
func (c *Conn) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	go func() {
		close(c.done)
		c.nc.Close()
		c.wg.Wait()
		if c.events != nil {
			c.events.ConnClosed(c)
		}
	}()
}

// IsClosed reports whether c has begun closing.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) readFrame() (wire.Frame, error) {
	f, err := wire.ReadFrame(c.nc)
	if err != nil {
		return wire.Frame{}, err
	}
	if f.Kind == wire.KindPiece {
		if err := c.bandwidth.ReserveIngress(int64(len(f.Block))); err != nil {
			return wire.Frame{}, fmt.Errorf("ingress bandwidth: %s", err)
		}
		c.countBandwidth("ingress", int64(8*len(f.Block)))
	}
	return f, nil
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.receiver)
		c.wg.Done()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
			f, err := c.readFrame()
			if err != nil {
				c.log().Infof("Error reading frame from socket, exiting read loop: %s", err)
				return
			}
			c.receiver <- f
		}
	}
}

func (c *Conn) sendFrame(f wire.Frame) error {
	if f.Kind == wire.KindPiece {
		if err := c.bandwidth.ReserveEgress(int64(len(f.Block))); err != nil {
			return fmt.Errorf("egress bandwidth: %s", err)
		}
	}
	if err := wire.WriteFrame(c.nc, f); err != nil {
		return fmt.Errorf("write frame: %s", err)
	}
	if f.Kind == wire.KindPiece {
		c.countBandwidth("egress", int64(8*len(f.Block)))
	}
	return nil
}

func (c *Conn) writeLoop() {
	defer func() {
		c.wg.Done()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.sender:
			if err := c.sendFrame(f); err != nil {
				c.log().Infof("Error writing frame to socket, exiting write loop: %s", err)
				return
			}
		}
	}
}

func (c *Conn) countBandwidth(direction string, nbits int64) {
	c.stats.Tagged(map[string]string{
		"piece_bandwidth_direction": direction,
	}).Counter("piece_bandwidth").Inc(nbits)
}

func (c *Conn) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "remote_peer", c.peerID, "hash", c.infoHash)
	return c.logger.With(keysAndValues...)
}
