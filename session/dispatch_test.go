package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/peerconn"
	"github.com/lindris/peerengine/piece"
	"github.com/lindris/peerengine/wire"
)

func newDispatchTestManager(t *testing.T, numPieces int) *Manager {
	info := &metainfo.Info{
		PieceLength: wire.BlockLength,
		Pieces:      make([][20]byte, numPieces),
	}
	for i := range info.Pieces {
		info.Files = append(info.Files, metainfo.FileEntry{})
	}
	info.Files = []metainfo.FileEntry{{Length: wire.BlockLength * int64(numPieces)}}

	m := &Manager{
		config:     Config{MaxUnchoked: 2, MaxOptimistic: 1}.applyDefaults(),
		info:       info,
		logger:     zap.NewNop().Sugar(),
		pieces:     piece.NewRegistry(numPieces),
		peers:      make(map[string]*PeerRecord),
		broadcasts: make(map[string]chan BroadCmd),
	}
	return m
}

// withDialSupport wires a Manager so dialOutgoing can run without a nil
// pointer panic: a real Handshaker (whose dials will simply fail against an
// unroutable address) and a running event loop to absorb its result event.
func withDialSupport(m *Manager) {
	m.handshaker = peerconn.HandshakerFixture(peerconn.ConfigFixture())
	m.eventLoop = newEventLoop()
	go m.eventLoop.run(m)
}

func candidatesFixture(n int) []TrackerPeer {
	var out []TrackerPeer
	for i := 0; i < n; i++ {
		out = append(out, TrackerPeer{Addr: "10.0.0.1:1", PeerID: core.PeerIDFixture()})
	}
	return out
}

func TestCountInterestedCountsOnlyInterestedPeers(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	m.peers["A"].AmInterested = true
	m.peers["B"] = NewPeerRecord("B", [20]byte{}, nil, 2)
	m.peers["C"] = NewPeerRecord("C", [20]byte{}, nil, 2)
	m.peers["C"].AmInterested = true

	assert.Equal(t, 2, m.countInterested())
}

func TestSpawnFromCandidatesWantsBasedOnInterestedCountNotPeerCount(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	withDialSupport(m)
	defer m.eventLoop.stop()

	// MaxUnchoked=2, MaxOptimistic=1 (see newDispatchTestManager), so the
	// target is 3. Five peers are connected but only one is interested;
	// countInterested must drive the formula, not len(m.peers).
	for _, addr := range []string{"A", "B", "C", "D", "E"} {
		m.peers[addr] = NewPeerRecord(addr, [20]byte{}, nil, 2)
	}
	m.peers["A"].AmInterested = true

	m.candidates = candidatesFixture(5)
	m.spawnFromCandidates()

	// want = 2+1-1 = 2, so exactly two candidates should have been dialed
	// off the head of the queue, leaving three behind.
	assert.Len(t, m.candidates, 3)
}

func TestSpawnFromCandidatesDialsNothingWhenAlreadyAtTarget(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	withDialSupport(m)
	defer m.eventLoop.stop()

	for _, addr := range []string{"A", "B", "C"} {
		m.peers[addr] = NewPeerRecord(addr, [20]byte{}, nil, 2)
		m.peers[addr].AmInterested = true
	}

	m.candidates = candidatesFixture(4)
	m.spawnFromCandidates()

	assert.Len(t, m.candidates, 4, "already at MaxUnchoked+MaxOptimistic interested peers, nothing to dial")
}

func TestSpawnOneCandidateDialsExactlyOne(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	withDialSupport(m)
	defer m.eventLoop.stop()

	m.candidates = candidatesFixture(3)
	m.spawnOneCandidate()

	assert.Len(t, m.candidates, 2, "spawnOneCandidate must dial exactly one candidate, not recompute the full target")
}

func TestSpawnOneCandidateNoopsOnEmptyQueue(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	withDialSupport(m)
	defer m.eventLoop.stop()

	m.spawnOneCandidate()
	assert.Empty(t, m.candidates)
}

func TestHandleInitRepliesWithBitfield(t *testing.T) {
	m := newDispatchTestManager(t, 4)
	m.pieces.MarkHave(0)
	m.pieces.MarkHave(2)

	cmd := PeerCmd{Addr: "A", Kind: Init, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, SendBitfield, d.Variant)
	assert.Equal(t, m.pieces.Bitfield(), d.Bitfield)
}

func TestHandleRecvUnchokeSelectsAndReservesPiece(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	m.peers["A"].SetHasPiece(0)
	m.peers["A"].SetHasPiece(1)

	cmd := PeerCmd{Addr: "A", Kind: RecvUnchoke, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	require.Equal(t, SendInterestedAndRequest, d.Variant)
	require.NotNil(t, m.peers["A"].CurrentPiece)
	assert.Equal(t, piece.Reserved, m.pieces.Status(*m.peers["A"].CurrentPiece))
	assert.True(t, m.peers["A"].AmInterested)
	assert.Equal(t, uint32(0), d.Request.Begin)
}

func TestHandleRecvChokeReleasesReservedPiece(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	idx := 1
	m.pieces.Reserve(idx)
	m.peers["A"].CurrentPiece = &idx

	cmd := PeerCmd{Addr: "A", Kind: RecvChoke, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	<-cmd.Reply

	assert.Equal(t, piece.Missing, m.pieces.Status(idx))
	assert.Nil(t, m.peers["A"].CurrentPiece)
	assert.True(t, m.peers["A"].PeerChoked)
}

func TestHandleRecvBitfieldRejectsWrongLength(t *testing.T) {
	m := newDispatchTestManager(t, 16)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 16)

	cmd := PeerCmd{Addr: "A", Kind: RecvBitfield, Bits: []byte{0xFF}, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, PrepareKill, d.Variant)
}

func TestHandleRecvBitfieldComputesInterest(t *testing.T) {
	m := newDispatchTestManager(t, 11)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 11)

	cmd := PeerCmd{
		Addr:  "A",
		Kind:  RecvBitfield,
		Bits:  []byte{0x91, 0x20},
		Reply: make(chan Decision, 1),
	}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, SendState, d.Variant)
	assert.True(t, d.AmInterested)
	assert.True(t, m.peers["A"].HasPiece(0))
	assert.True(t, m.peers["A"].HasPiece(3))
	assert.True(t, m.peers["A"].HasPiece(7))
	assert.True(t, m.peers["A"].HasPiece(10))
	assert.False(t, m.peers["A"].HasPiece(1))
}

func TestHandlePieceDoneMarksHaveAndBroadcasts(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	m.broadcasts["A"] = make(chan BroadCmd, 1)
	idx := 0
	m.pieces.Reserve(idx)
	m.peers["A"].CurrentPiece = &idx

	cmd := PeerCmd{Addr: "A", Kind: PieceDone, Index: 0, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	<-cmd.Reply

	assert.Equal(t, piece.Have, m.pieces.Status(0))
	select {
	case bc := <-m.broadcasts["A"]:
		have, ok := bc.(SendHaveBroadcast)
		require.True(t, ok)
		assert.Equal(t, 0, have.Index)
	default:
		t.Fatal("expected a SendHaveBroadcast")
	}
}

func TestHandleRecvNotInterestedKillsOnMutualDisinterest(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	m.peers["A"].PeerInterested = true
	// We have no interest in A and no piece reserved from them.

	cmd := PeerCmd{Addr: "A", Kind: RecvNotInterested, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, PrepareKill, d.Variant)
	assert.False(t, m.peers["A"].PeerInterested)
}

func TestHandleRecvNotInterestedKeepsConnectionWithPieceInFlight(t *testing.T) {
	m := newDispatchTestManager(t, 2)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 2)
	m.peers["A"].PeerInterested = true
	idx := 0
	m.pieces.Reserve(idx)
	m.peers["A"].CurrentPiece = &idx

	cmd := PeerCmd{Addr: "A", Kind: RecvNotInterested, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, Ignore, d.Variant)
}

func TestHandlePieceDoneKillsOnMutualDisinterestWithNoNextPiece(t *testing.T) {
	m := newDispatchTestManager(t, 1)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 1)
	m.peers["A"].AmInterested = true
	m.peers["A"].PeerInterested = false
	m.broadcasts["A"] = make(chan BroadCmd, 1)
	idx := 0
	m.pieces.Reserve(idx)
	m.peers["A"].CurrentPiece = &idx

	// Only piece in the torrent; once it completes there is nothing left to
	// request from A, and A was never interested in us either.
	cmd := PeerCmd{Addr: "A", Kind: PieceDone, Index: 0, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, PrepareKill, d.Variant)
	assert.False(t, m.peers["A"].AmInterested)
}

func TestHandleRecvRequestIgnoresWhenChoking(t *testing.T) {
	m := newDispatchTestManager(t, 1)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 1)
	m.peers["A"].AmChoked = true
	m.pieces.MarkHave(0)

	cmd := PeerCmd{Addr: "A", Kind: RecvRequest, ReqIndex: 0, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	assert.Equal(t, Ignore, d.Variant)
}

func TestHandleRecvRequestLoadsPieceWhenUnchoked(t *testing.T) {
	m := newDispatchTestManager(t, 1)
	m.peers["A"] = NewPeerRecord("A", [20]byte{}, nil, 1)
	m.peers["A"].AmChoked = false
	m.pieces.MarkHave(0)
	m.info.Pieces[0] = [20]byte{0xAB}

	cmd := PeerCmd{Addr: "A", Kind: RecvRequest, ReqIndex: 0, Reply: make(chan Decision, 1)}
	m.handlePeerCmd(cmd)
	d := <-cmd.Reply

	require.Equal(t, LoadAndSendPiece, d.Variant)
	assert.Equal(t, 0, d.PieceIndex)
	assert.Equal(t, [20]byte{0xAB}, d.PieceHash)
}
