package peerhandler

import (
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/piecestore"
	"github.com/lindris/peerengine/session"
	"github.com/lindris/peerengine/wire"
)

// InfoFixture builds a single-file torrent of numPieces pieces, each
// exactly one block long, with placeholder (all-zero) hashes.
func InfoFixture(numPieces int) *metainfo.Info {
	pieces := make([][20]byte, numPieces)
	return &metainfo.Info{
		Name:        "fixture",
		PieceLength: wire.BlockLength,
		Pieces:      pieces,
		Files:       []metainfo.FileEntry{{Length: int64(numPieces) * wire.BlockLength, Path: "fixture.bin"}},
		InfoHash:    core.InfoHashFixture(),
	}
}

// freePort asks the OS for an unused TCP port by binding and immediately
// releasing a listener.
func freePort() int {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		panic(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// ManagerFixture starts a real session.Manager wired to spawn Handlers,
// listening on a loopback port picked by the OS. The caller must call
// mgr.Stop() when done.
func ManagerFixture(info *metainfo.Info, store piecestore.Store) *session.Manager {
	return ManagerFixtureWithHandlerConfig(info, store, Config{
		KeepAliveInterval: time.Hour,
		StatsInterval:     time.Hour,
	})
}

// ManagerFixtureWithHandlerConfig is like ManagerFixture but lets the
// caller override the spawned Handlers' own timers, e.g. to exercise the
// keep-alive timeout on a short interval.
func ManagerFixtureWithHandlerConfig(info *metainfo.Info, store piecestore.Store, handlerConfig Config) *session.Manager {
	cfg := session.Config{
		ChokeInterval:     time.Hour,
		KeepAliveInterval: time.Hour,
		StatsInterval:     time.Hour,
		MaxUnchoked:       10,
		MaxOptimistic:     1,
		ListenPort:        freePort(),
	}
	logger := zap.NewNop().Sugar()
	spawn := NewSpawner(info, store, handlerConfig, clock.New(), logger)

	mgr, err := session.NewManager(
		cfg, info, core.PeerIDFixture(), tally.NewTestScope("", nil), logger, clock.New(),
		nil, nil, spawn)
	if err != nil {
		panic(err)
	}
	if err := mgr.Start(); err != nil {
		panic(err)
	}
	return mgr
}

// DialRemoteFixture performs a raw client-side handshake against mgr's
// listener and returns the resulting socket, ready for
// wire.WriteFrame/ReadFrame.
func DialRemoteFixture(mgr *session.Manager, infoHash core.InfoHash, remotePeerID core.PeerID) (net.Conn, error) {
	nc, err := net.Dial("tcp", mgr.Addr().String())
	if err != nil {
		return nil, err
	}
	if err := wire.WriteHandshake(nc, wire.Handshake{InfoHash: infoHash, PeerID: remotePeerID}); err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := wire.ReadHandshake(nc); err != nil {
		nc.Close()
		return nil, err
	}
	return nc, nil
}
