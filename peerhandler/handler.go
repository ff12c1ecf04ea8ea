// Package peerhandler runs the per-peer event loop: it owns one
// peerconn.Conn, the in-flight PieceRx/PieceTx buffers for that
// connection, and asks the session manager how to react to every inbound
// frame and broadcast command.
package peerhandler

import (
	"crypto/sha1"
	"fmt"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/peerconn"
	"github.com/lindris/peerengine/piece"
	"github.com/lindris/peerengine/piecestore"
	"github.com/lindris/peerengine/session"
	"github.com/lindris/peerengine/wire"
)

// rateWindow is a two-sample moving window over bytes transferred per
// stats tick, mirroring the one the session keeps over reported rates.
type rateWindow struct {
	samples []uint32
}

func (w *rateWindow) push(n uint32) (avg uint32, full bool) {
	w.samples = append(w.samples, n)
	if len(w.samples) > 2 {
		w.samples = w.samples[len(w.samples)-2:]
	}
	if len(w.samples) < 2 {
		return 0, false
	}
	return (w.samples[0] + w.samples[1]) / 2, true
}

// Handler runs one peer connection's cooperative event loop.
type Handler struct {
	addr      string
	conn      *peerconn.Conn
	mgr       *session.Manager
	broadcast <-chan session.BroadCmd

	info   *metainfo.Info
	store  piecestore.Store
	config Config
	clk    clock.Clock
	logger *zap.SugaredLogger

	pieceRx *piece.PieceRx
	pieceTx *piece.PieceTx

	weChokePeer     bool
	weAreInterested bool
	bufferedHaves   []int

	frameArrivedSinceTick bool
	downloadedSinceTick   uint32
	uploadedSinceTick     uint32
	dlWindow              rateWindow
	ulWindow              rateWindow
}

// NewSpawner returns a session.HandlerSpawner that launches a Handler for
// every connection the session establishes. info and store are shared
// across every spawned Handler; config, clk, and logger likewise.
func NewSpawner(
	info *metainfo.Info,
	store piecestore.Store,
	config Config,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) session.HandlerSpawner {
	config = config.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return func(mgr *session.Manager, addr string, conn *peerconn.Conn, broadcast <-chan session.BroadCmd) {
		h := &Handler{
			addr:        addr,
			conn:        conn,
			mgr:         mgr,
			broadcast:   broadcast,
			info:        info,
			store:       store,
			config:      config,
			clk:         clk,
			logger:      logger,
			weChokePeer: true,
		}
		go h.run()
	}
}

func (h *Handler) log() *zap.SugaredLogger {
	return h.logger.With("addr", h.addr)
}

// run is the Handler's entire lifetime: an initial bitfield exchange,
// followed by the cooperative event loop until termination.
func (h *Handler) run() {
	if !h.sendInitialBitfield() {
		return
	}

	keepAliveTick := h.clk.Tick(h.config.KeepAliveInterval)
	statsTick := h.clk.Tick(h.config.StatsInterval)

	for {
		select {
		case f, ok := <-h.conn.Receiver():
			if !ok {
				h.kill("connection closed")
				return
			}
			h.frameArrivedSinceTick = true
			if !h.dispatchFrame(f) {
				return
			}

		case bc, ok := <-h.broadcast:
			if !ok {
				h.kill("session shutdown")
				return
			}
			if !h.dispatchBroadcast(bc) {
				return
			}

		case <-keepAliveTick:
			if !h.frameArrivedSinceTick {
				h.kill("keep-alive timeout")
				return
			}
			h.frameArrivedSinceTick = false
			if err := h.sendFrame(wire.KeepAliveFrame()); err != nil {
				return
			}

		case <-statsTick:
			h.sampleStats()
		}
	}
}

func (h *Handler) sendInitialBitfield() bool {
	d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.Init})
	if err != nil {
		h.conn.Close()
		return false
	}
	if len(d.Bitfield) > 0 {
		if err := h.sendFrame(wire.BitfieldFrame(d.Bitfield)); err != nil {
			return false
		}
	}
	return true
}

func (h *Handler) sendFrame(f wire.Frame) error {
	if err := h.conn.Send(f); err != nil {
		h.kill(fmt.Sprintf("send error: %s", err))
		return err
	}
	if f.Kind == wire.KindPiece {
		h.uploadedSinceTick += uint32(len(f.Block))
	}
	return nil
}

func (h *Handler) kill(reason string) {
	h.log().Infof("Terminating connection: %s", reason)
	h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.KillReq, Reason: reason})
	h.conn.Close()
}

func (h *Handler) sampleStats() {
	dl, dlFull := h.dlWindow.push(h.downloadedSinceTick)
	ul, ulFull := h.ulWindow.push(h.uploadedSinceTick)
	h.downloadedSinceTick = 0
	h.uploadedSinceTick = 0
	if dlFull && ulFull {
		h.mgr.SendPeerCmd(session.PeerCmd{
			Addr:         h.addr,
			Kind:         session.SyncStats,
			DownloadRate: dl,
			UploadRate:   ul,
		})
	}
}

// dispatchBroadcast handles one session->handlers BroadCmd. Returns false
// if the handler should terminate.
func (h *Handler) dispatchBroadcast(bc session.BroadCmd) bool {
	switch cmd := bc.(type) {
	case session.SendHaveBroadcast:
		if h.weChokePeer {
			h.bufferedHaves = append(h.bufferedHaves, cmd.Index)
			return true
		}
		return h.sendFrame(wire.HaveFrame(uint32(cmd.Index))) == nil

	case session.SendOwnStateBroadcast:
		choked, named := cmd.AmChoked[h.addr]
		if !named {
			return true
		}
		if choked {
			if err := h.sendFrame(wire.ChokeFrame()); err != nil {
				return false
			}
			h.weChokePeer = true
			return true
		}
		if err := h.sendFrame(wire.UnchokeFrame()); err != nil {
			return false
		}
		h.weChokePeer = false
		for _, idx := range h.bufferedHaves {
			if err := h.sendFrame(wire.HaveFrame(uint32(idx))); err != nil {
				return false
			}
		}
		h.bufferedHaves = nil
		return true
	}
	return true
}

// dispatchFrame handles one inbound wire frame. Returns false if the
// handler has terminated (having already called kill).
func (h *Handler) dispatchFrame(f wire.Frame) bool {
	switch f.Kind {
	case wire.KindKeepAlive:
		return true

	case wire.KindChoke:
		d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvChoke})
		return h.handleIgnoreOnly(d, err)

	case wire.KindUnchoke:
		return h.handleUnchoke()

	case wire.KindInterested:
		d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvInterested})
		return h.handleIgnoreOnly(d, err)

	case wire.KindNotInterested:
		_, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvNotInterested})
		return err == nil

	case wire.KindHave:
		return h.handleHave(f)

	case wire.KindBitfield:
		return h.handleBitfield(f)

	case wire.KindRequest:
		return h.handleRequest(f)

	case wire.KindPiece:
		return h.handlePiece(f)

	case wire.KindCancel:
		return true

	case wire.KindPort:
		return true

	default:
		return true
	}
}

func (h *Handler) handleIgnoreOnly(d session.Decision, err error) bool {
	if err != nil {
		return false
	}
	return true
}

func (h *Handler) handleUnchoke() bool {
	d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvUnchoke})
	if err != nil {
		return false
	}
	switch d.Variant {
	case session.SendNotInterested:
		h.weAreInterested = false
		return h.sendFrame(wire.NotInterestedFrame()) == nil

	case session.SendInterestedAndRequest, session.SendRequest:
		if d.Variant == session.SendInterestedAndRequest {
			h.weAreInterested = true
			if err := h.sendFrame(wire.InterestedFrame()); err != nil {
				return false
			}
		}
		return h.beginPieceRx(d.Request)

	default:
		return true
	}
}

// beginPieceRx creates a fresh PieceRx for req's piece and pipelines two
// Request frames, per the recommendation that pipeline depth exceed one.
func (h *Handler) beginPieceRx(req session.BlockRequest) bool {
	index := int(req.Index)
	hash := h.info.Pieces[index]
	length := h.info.PieceLengthAt(index)
	h.pieceRx = piece.NewPieceRx(index, hash, length)

	// req names the piece's first block, which is also the head of the
	// fresh PieceRx's queue; both requests are popped off that queue so each
	// sent block is tracked as in flight exactly once.
	for i := 0; i < 2; i++ {
		b, ok := h.pieceRx.NextRequest()
		if !ok {
			break
		}
		if err := h.sendFrame(wire.RequestFrame(req.Index, b.Begin, b.Length)); err != nil {
			return false
		}
	}
	return true
}

func (h *Handler) handleHave(f wire.Frame) bool {
	if err := wire.ValidateHave(f, h.info.NumPieces()); err != nil {
		h.kill(err.Error())
		return false
	}
	d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvHave, Index: int(f.Index)})
	if err != nil {
		return false
	}
	switch d.Variant {
	case session.SendInterested:
		h.weAreInterested = true
		return h.sendFrame(wire.InterestedFrame()) == nil
	case session.SendInterestedAndRequest:
		h.weAreInterested = true
		if err := h.sendFrame(wire.InterestedFrame()); err != nil {
			return false
		}
		return h.beginPieceRx(d.Request)
	default:
		return true
	}
}

func (h *Handler) handleBitfield(f wire.Frame) bool {
	if err := wire.ValidateBitfield(f, h.info.NumPieces()); err != nil {
		h.kill(err.Error())
		return false
	}
	d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.RecvBitfield, Bits: f.Bitfield})
	if err != nil {
		return false
	}
	if d.Variant == session.PrepareKill {
		h.kill(d.Reason)
		return false
	}
	if d.WithAmUnchoked {
		if err := h.sendFrame(wire.UnchokeFrame()); err != nil {
			return false
		}
		h.weChokePeer = false
	}
	h.weAreInterested = d.AmInterested
	if d.AmInterested {
		return h.sendFrame(wire.InterestedFrame()) == nil
	}
	return h.sendFrame(wire.NotInterestedFrame()) == nil
}

func (h *Handler) handleRequest(f wire.Frame) bool {
	if h.pieceTx != nil && h.pieceTx.Index == int(f.Index) {
		if err := wire.ValidateRequest(f, h.pieceTx.Index, h.info.PieceLengthAt(h.pieceTx.Index)); err != nil {
			h.kill(err.Error())
			return false
		}
		block, err := h.pieceTx.Block(f.Begin, f.Length)
		if err != nil {
			h.kill(err.Error())
			return false
		}
		return h.sendFrame(wire.PieceFrame(f.Index, f.Begin, block)) == nil
	}

	d, err := h.mgr.SendPeerCmd(session.PeerCmd{
		Addr:      h.addr,
		Kind:      session.RecvRequest,
		ReqIndex:  f.Index,
		ReqBegin:  f.Begin,
		ReqLength: f.Length,
	})
	if err != nil {
		return false
	}
	if d.Variant != session.LoadAndSendPiece {
		return true
	}

	if err := wire.ValidateRequest(f, d.PieceIndex, h.info.PieceLengthAt(d.PieceIndex)); err != nil {
		h.kill(err.Error())
		return false
	}

	data, err := h.store.Load(d.PieceHash)
	if err != nil {
		h.log().Infof("Failed to load piece %d for request: %s", d.PieceIndex, err)
		return true
	}
	h.pieceTx = piece.NewPieceTx(d.PieceIndex, data)

	block, err := h.pieceTx.Block(f.Begin, f.Length)
	if err != nil {
		h.kill(err.Error())
		return false
	}
	return h.sendFrame(wire.PieceFrame(f.Index, f.Begin, block)) == nil
}

func (h *Handler) handlePiece(f wire.Frame) bool {
	if h.pieceRx == nil || h.pieceRx.Index != int(f.Index) {
		h.kill("unexpected piece block")
		return false
	}
	if err := h.pieceRx.ReceiveBlock(f.Begin, f.Block); err != nil {
		h.kill(err.Error())
		return false
	}
	h.downloadedSinceTick += uint32(len(f.Block))

	if !h.pieceRx.Done() {
		b, ok := h.pieceRx.NextRequest()
		if !ok {
			return true
		}
		return h.sendFrame(wire.RequestFrame(uint32(h.pieceRx.Index), b.Begin, b.Length)) == nil
	}

	if !h.pieceRx.Verify() {
		h.kill(fmt.Sprintf("piece %d hash mismatch", h.pieceRx.Index))
		return false
	}

	completed := h.pieceRx.Index
	if err := h.store.Save(sha1.Sum(h.pieceRx.Buffer), h.pieceRx.Buffer); err != nil {
		h.log().Errorf("Failed to save piece %d: %s", completed, err)
	}
	h.pieceRx = nil

	d, err := h.mgr.SendPeerCmd(session.PeerCmd{Addr: h.addr, Kind: session.PieceDone, Index: completed})
	if err != nil {
		return false
	}
	switch d.Variant {
	case session.SendRequest:
		return h.beginPieceRx(d.Request)
	case session.SendNotInterested:
		h.weAreInterested = false
		return h.sendFrame(wire.NotInterestedFrame()) == nil
	case session.PrepareKill:
		h.kill(d.Reason)
		return false
	default:
		return true
	}
}
