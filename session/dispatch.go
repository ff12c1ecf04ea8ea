package session

import (
	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/peerconn"
	"github.com/lindris/peerengine/piece"
	"github.com/lindris/peerengine/wire"
)

// handlePeerCmd dispatches one decision request from a peer handler. Only
// ever called from the event loop goroutine.
func (m *Manager) handlePeerCmd(cmd PeerCmd) {
	switch cmd.Kind {
	case Init:
		m.handleInit(cmd)
	case RecvChoke:
		m.handleRecvChoke(cmd)
	case RecvUnchoke:
		m.handleRecvUnchoke(cmd)
	case RecvInterested:
		m.handleRecvInterested(cmd)
	case RecvNotInterested:
		m.handleRecvNotInterested(cmd)
	case RecvHave:
		m.handleRecvHave(cmd)
	case RecvBitfield:
		m.handleRecvBitfield(cmd)
	case RecvRequest:
		m.handleRecvRequest(cmd)
	case PieceDone:
		m.handlePieceDone(cmd)
	case KillReq:
		m.handleKillReq(cmd)
	case SyncStats:
		m.handleSyncStats(cmd)
	default:
		reply(cmd, Decision{Variant: Ignore})
	}
}

func reply(cmd PeerCmd, d Decision) {
	if cmd.Reply != nil {
		cmd.Reply <- d
	}
}

func (m *Manager) handleInit(cmd PeerCmd) {
	reply(cmd, Decision{Variant: SendBitfield, Bitfield: m.pieces.Bitfield()})
}

func (m *Manager) handleRecvChoke(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	p.PeerChoked = true
	if p.CurrentPiece != nil {
		m.pieces.Release(*p.CurrentPiece)
		p.CurrentPiece = nil
	}
	reply(cmd, Decision{Variant: Ignore})
}

func (m *Manager) handleRecvUnchoke(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	p.PeerChoked = false

	idx, found := piece.Select(m.pieces, p.HasPiece)
	if !found {
		if p.AmInterested {
			p.AmInterested = false
			reply(cmd, Decision{Variant: SendNotInterested})
			return
		}
		reply(cmd, Decision{Variant: Ignore})
		return
	}

	m.pieces.Reserve(idx)
	p.CurrentPiece = &idx
	req := m.firstBlockRequest(idx)

	if !p.AmInterested {
		p.AmInterested = true
		reply(cmd, Decision{Variant: SendInterestedAndRequest, Request: req})
		return
	}
	reply(cmd, Decision{Variant: SendRequest, Request: req})
}

func (m *Manager) handleRecvInterested(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if ok && !p.PeerInterested {
		p.PeerInterested = true
		m.notInterested.Dec()
	}
	reply(cmd, Decision{Variant: Ignore})
}

func (m *Manager) handleRecvNotInterested(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	if p.PeerInterested {
		p.PeerInterested = false
		m.notInterested.Inc()
	}
	if !p.AmInterested && p.CurrentPiece == nil {
		reply(cmd, Decision{Variant: PrepareKill, Reason: "mutual disinterest"})
		return
	}
	reply(cmd, Decision{Variant: Ignore})
}

func (m *Manager) handleRecvHave(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	m.pieces.RecordHave(cmd.Index)
	p.SetHasPiece(cmd.Index)

	if p.AmInterested {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	if p.PeerChoked {
		if _, found := piece.Select(m.pieces, p.HasPiece); found {
			p.AmInterested = true
			reply(cmd, Decision{Variant: SendInterested})
			return
		}
		reply(cmd, Decision{Variant: Ignore})
		return
	}

	idx, found := piece.Select(m.pieces, p.HasPiece)
	if !found {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	m.pieces.Reserve(idx)
	p.CurrentPiece = &idx
	p.AmInterested = true
	reply(cmd, Decision{Variant: SendInterestedAndRequest, Request: m.firstBlockRequest(idx)})
}

func (m *Manager) handleRecvBitfield(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	expected := (m.pieces.Len() + 7) / 8
	if len(cmd.Bits) != expected {
		reply(cmd, Decision{Variant: PrepareKill, Reason: "bitfield length mismatch"})
		return
	}
	for i := 0; i < m.pieces.Len(); i++ {
		if cmd.Bits[i/8]&(0x80>>uint(i%8)) != 0 {
			m.pieces.RecordHave(i)
			p.SetHasPiece(i)
		}
	}

	_, interesting := piece.Select(m.pieces, p.HasPiece)
	p.AmInterested = interesting

	withAmUnchoked := m.countUnchoked() < m.config.MaxUnchoked
	if withAmUnchoked {
		p.AmChoked = false
	}

	reply(cmd, Decision{
		Variant:        SendState,
		WithAmUnchoked: withAmUnchoked,
		AmInterested:   interesting,
	})
}

func (m *Manager) handleRecvRequest(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok || p.AmChoked {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	index := int(cmd.ReqIndex)
	if index < 0 || index >= m.pieces.Len() || m.pieces.Status(index) != piece.Have {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	reply(cmd, Decision{
		Variant:    LoadAndSendPiece,
		PieceIndex: index,
		PieceHash:  m.info.Pieces[index],
	})
}

func (m *Manager) handlePieceDone(cmd PeerCmd) {
	p, ok := m.peers[cmd.Addr]
	if !ok {
		reply(cmd, Decision{Variant: Ignore})
		return
	}
	index := cmd.Index
	m.pieces.MarkHave(index)
	p.CurrentPiece = nil
	m.broadcast(SendHaveBroadcast{Index: index})

	if m.pieces.Complete() {
		m.maybeSpawnExtractor()
	}

	idx, found := piece.Select(m.pieces, p.HasPiece)
	if found && !p.PeerChoked {
		m.pieces.Reserve(idx)
		p.CurrentPiece = &idx
		reply(cmd, Decision{Variant: SendRequest, Request: m.firstBlockRequest(idx)})
		return
	}
	if p.AmInterested {
		p.AmInterested = false
		if !p.PeerInterested {
			reply(cmd, Decision{Variant: PrepareKill, Reason: "mutual disinterest"})
			return
		}
		reply(cmd, Decision{Variant: SendNotInterested})
		return
	}
	if !p.PeerInterested {
		reply(cmd, Decision{Variant: PrepareKill, Reason: "mutual disinterest"})
		return
	}
	reply(cmd, Decision{Variant: Ignore})
}

func (m *Manager) handleKillReq(cmd PeerCmd) {
	m.killPeer(cmd.Addr, cmd.Reason)
	reply(cmd, Decision{Variant: Ignore})
}

// killPeer removes addr's peer record, releases any piece it had reserved,
// forgets its contribution to piece availability, and replaces it with the
// next spawn candidate.
func (m *Manager) killPeer(addr, reason string) {
	p, ok := m.peers[addr]
	if !ok {
		return
	}
	m.log().Infof("Removing peer %s: %s", addr, reason)

	if p.CurrentPiece != nil {
		m.pieces.Release(*p.CurrentPiece)
	}
	for i := 0; i < int(p.PeerHas.Len()); i++ {
		if p.PeerHas.Test(uint(i)) {
			m.pieces.ForgetHave(i)
		}
	}
	if !p.PeerInterested {
		m.notInterested.Dec()
	}
	if ch, ok := m.broadcasts[addr]; ok {
		close(ch)
		delete(m.broadcasts, addr)
	}
	delete(m.peers, addr)
	p.Conn.Close()

	if m.optimisticAddr == addr {
		m.optimisticAddr = ""
	}

	if m.pieces.Complete() {
		m.maybeSpawnExtractor()
	} else if len(m.candidates) == 0 {
		m.pollTracker()
	} else {
		m.spawnOneCandidate()
	}
}

func (m *Manager) handleSyncStats(cmd PeerCmd) {
	if p, ok := m.peers[cmd.Addr]; ok {
		// The handler reports its own side: DownloadRate is what we received
		// from the peer, UploadRate what we sent to it. PeerRecord keeps rates
		// from the peer's side, so the two swap here.
		p.RecordRates(cmd.UploadRate, cmd.DownloadRate)
	}
	reply(cmd, Decision{Variant: Ignore})
}

func (m *Manager) handleIncomingConn(e incomingConnEvent) {
	if e.err != nil {
		m.log().Infof("Failed incoming handshake from %s: %s", e.addr, e.err)
		return
	}
	m.addPeer(e.addr, e.peerID, e.conn)
}

func (m *Manager) handleOutgoingConn(e outgoingConnEvent) {
	if e.err != nil {
		m.log().Infof("Failed outgoing handshake to %s: %s", e.addr, e.err)
		m.spawnOneCandidate()
		return
	}
	m.addPeer(e.addr, e.peerID, e.conn)
}

func (m *Manager) addPeer(addr string, peerID core.PeerID, conn *peerconn.Conn) {
	if _, exists := m.peers[addr]; exists {
		conn.Close()
		return
	}
	p := NewPeerRecord(addr, peerID, conn, m.pieces.Len())
	m.peers[addr] = p

	bc := make(chan BroadCmd, m.broadcastBufferSize)
	m.broadcasts[addr] = bc

	m.notInterested.Inc()

	conn.Start()
	m.spawn(m, addr, conn, bc)
}

func (m *Manager) handleTrackerResult(e trackerResultEvent) {
	if e.err != nil {
		m.log().Infof("Tracker announce failed: %s", e.err)
		return
	}
	for _, p := range e.peers {
		if _, connected := m.peers[p.Addr]; connected {
			continue
		}
		m.candidates = append(m.candidates, p)
	}
	m.spawnFromCandidates()
}

// countInterested returns the number of connected peers we are currently
// interested in.
func (m *Manager) countInterested() int {
	n := 0
	for _, p := range m.peers {
		if p.AmInterested {
			n++
		}
	}
	return n
}

// spawnFromCandidates dials up to MaxUnchoked+MaxOptimistic minus the
// number of peers we're currently interested in, from the head of the
// candidate queue. Called when a tracker announce returns new candidates.
func (m *Manager) spawnFromCandidates() {
	want := m.config.MaxUnchoked + m.config.MaxOptimistic - m.countInterested()
	for want > 0 && len(m.candidates) > 0 {
		next := m.candidates[0]
		m.candidates = m.candidates[1:]
		m.dialOutgoing(next)
		want--
	}
}

// spawnOneCandidate dials exactly one candidate from the head of the
// queue, replacing a single lost connection slot. Called when an existing
// peer is killed or an outgoing dial fails, rather than recomputing the
// full spawn target.
func (m *Manager) spawnOneCandidate() {
	if len(m.candidates) == 0 {
		return
	}
	next := m.candidates[0]
	m.candidates = m.candidates[1:]
	m.dialOutgoing(next)
}

func (m *Manager) handleExtractorDone(e extractorDoneEvent) {
	if e.err != nil {
		m.log().Errorf("Extractor failed: %s", e.err)
		return
	}
	m.log().Info("Extractor finished")
}

func (m *Manager) maybeSpawnExtractor() {
	if m.extractorSpawned || m.extractor == nil {
		return
	}
	m.extractorSpawned = true
	go func() {
		err := m.extractor.Extract()
		m.eventLoop.send(extractorDoneEvent{err: err})
	}()
}

func (m *Manager) handleShutdown() {
	for addr, ch := range m.broadcasts {
		close(ch)
		delete(m.broadcasts, addr)
	}
	for addr, p := range m.peers {
		p.Conn.Close()
		delete(m.peers, addr)
	}
}

func (m *Manager) countUnchoked() int {
	n := 0
	for _, p := range m.peers {
		if !p.AmChoked {
			n++
		}
	}
	return n
}

// firstBlockRequest builds the initial block request for a newly reserved
// piece, sized to BlockLength or the whole piece if shorter.
func (m *Manager) firstBlockRequest(index int) BlockRequest {
	length := wire.BlockLength
	if pl := m.info.PieceLengthAt(index); pl < int64(length) {
		length = int(pl)
	}
	return BlockRequest{Index: uint32(index), Begin: 0, Length: uint32(length)}
}
