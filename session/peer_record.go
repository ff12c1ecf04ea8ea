package session

import (
	"github.com/willf/bitset"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/peerconn"
)

// rateWindow is a two-sample moving window over bytes transferred per
// stats tick, a deliberately coarse rate signal.
type rateWindow struct {
	samples []uint32
}

func (w *rateWindow) push(n uint32) {
	w.samples = append(w.samples, n)
	if len(w.samples) > 2 {
		w.samples = w.samples[len(w.samples)-2:]
	}
}

func (w *rateWindow) full() bool { return len(w.samples) == 2 }

func (w *rateWindow) rate() uint32 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum uint32
	for _, s := range w.samples {
		sum += s
	}
	return sum / uint32(len(w.samples))
}

// PeerRecord is the session's exclusive bookkeeping for one connected peer.
// It is mutated only by the session's own task, in response to PeerCmd
// requests and policy ticks.
type PeerRecord struct {
	Addr   string
	PeerID core.PeerID

	Conn *peerconn.Conn

	PeerHas *bitset.BitSet

	CurrentPiece *int

	AmInterested   bool
	AmChoked       bool
	PeerInterested bool
	PeerChoked     bool
	Optimistic     bool

	downloadRate *uint32
	uploadRate   *uint32

	dlWindow rateWindow
	ulWindow rateWindow
}

// NewPeerRecord creates a PeerRecord in its initial state: both directions
// choked, neither interested, no piece reserved.
func NewPeerRecord(addr string, peerID core.PeerID, conn *peerconn.Conn, numPieces int) *PeerRecord {
	return &PeerRecord{
		Addr:       addr,
		PeerID:     peerID,
		Conn:       conn,
		PeerHas:    bitset.New(uint(numPieces)),
		AmChoked:   true,
		PeerChoked: true,
	}
}

// HasPiece reports whether the remote peer has piece index, per the most
// recently observed Bitfield/Have state.
func (p *PeerRecord) HasPiece(index int) bool {
	if index < 0 || uint(index) >= p.PeerHas.Len() {
		return false
	}
	return p.PeerHas.Test(uint(index))
}

// SetHasPiece records that the remote peer has piece index.
func (p *PeerRecord) SetHasPiece(index int) {
	if index >= 0 && uint(index) < p.PeerHas.Len() {
		p.PeerHas.Set(uint(index))
	}
}

// RecordRates pushes a new download/upload sample and reports whether both
// windows are now full (i.e. this peer is eligible for a choke-policy rank).
func (p *PeerRecord) RecordRates(downloaded, uploaded uint32) (ready bool) {
	p.dlWindow.push(downloaded)
	p.ulWindow.push(uploaded)
	if p.dlWindow.full() {
		r := p.dlWindow.rate()
		p.downloadRate = &r
	}
	if p.ulWindow.full() {
		r := p.ulWindow.rate()
		p.uploadRate = &r
	}
	return p.downloadRate != nil && p.uploadRate != nil
}

// UploadRate returns the peer's observed upload-to-us rate, or 0 if no
// sample window has completed yet.
func (p *PeerRecord) UploadRate() uint32 {
	if p.uploadRate == nil {
		return 0
	}
	return *p.uploadRate
}

// DownloadRate returns the peer's observed download-from-us rate, or 0 if
// no sample window has completed yet.
func (p *PeerRecord) DownloadRate() uint32 {
	if p.downloadRate == nil {
		return 0
	}
	return *p.downloadRate
}

// RatesReady reports whether both rate samples have been observed at least
// once, per the choke policy's "skip this tick" rule.
func (p *PeerRecord) RatesReady() bool {
	return p.downloadRate != nil && p.uploadRate != nil
}
