package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/piece"
)

func newTestManager(t *testing.T, numPeers int) *Manager {
	m := &Manager{
		config:     Config{MaxUnchoked: 2, MaxOptimistic: 1, MaxOptimisticRounds: 3}.applyDefaults(),
		logger:     zap.NewNop().Sugar(),
		pieces:     piece.NewRegistry(4),
		peers:      make(map[string]*PeerRecord),
		broadcasts: make(map[string]chan BroadCmd),
	}
	m.config.MaxUnchoked = 2
	for i := 0; i < numPeers; i++ {
		addr := string(rune('A' + i))
		m.peers[addr] = &PeerRecord{Addr: addr, AmChoked: true, PeerChoked: true}
	}
	require.Len(t, m.peers, numPeers)
	return m
}

func TestChokePolicySkipsTickWhenRatesMissing(t *testing.T) {
	m := newTestManager(t, 2)
	m.runChokePolicy()
	for _, p := range m.peers {
		assert.True(t, p.AmChoked, "no rates reported yet, nothing should change")
	}
}

func TestChokePolicyUnchokesTopRankedInterestedPeers(t *testing.T) {
	m := newTestManager(t, 3)

	m.peers["A"].PeerInterested = true
	m.peers["B"].PeerInterested = true
	m.peers["C"].PeerInterested = true

	for _, p := range m.peers {
		p.RecordRates(0, 0)
		p.RecordRates(0, 0)
	}
	m.peers["A"].RecordRates(0, 100)
	m.peers["A"].RecordRates(0, 100)
	m.peers["B"].RecordRates(0, 50)
	m.peers["B"].RecordRates(0, 50)
	m.peers["C"].RecordRates(0, 10)
	m.peers["C"].RecordRates(0, 10)

	m.chokeRound = 1 // skip optimistic-pick branch for a deterministic result
	m.runChokePolicy()

	assert.False(t, m.peers["A"].AmChoked, "highest upload rank must be unchoked")
	assert.False(t, m.peers["B"].AmChoked, "second highest upload rank must be unchoked")
	assert.True(t, m.peers["C"].AmChoked, "rank beyond MaxUnchoked stays choked")
}

func TestChokePolicyChokesUninterestedPeer(t *testing.T) {
	m := newTestManager(t, 1)
	p := m.peers["A"]
	p.AmChoked = false
	p.PeerInterested = false
	p.RecordRates(0, 0)
	p.RecordRates(0, 0)

	m.chokeRound = 1
	m.runChokePolicy()

	assert.True(t, p.AmChoked, "unchoked-but-uninterested peer should be choked")
}

func TestPickOptimisticOnlyChoosesChokedInterestedPeers(t *testing.T) {
	m := newTestManager(t, 2)
	m.peers["A"].PeerInterested = true
	m.peers["A"].AmChoked = false
	m.peers["B"].PeerInterested = true
	m.peers["B"].AmChoked = true

	addr := m.pickOptimistic()
	assert.Equal(t, "B", addr)
}

func TestPickOptimisticReturnsEmptyWhenNoCandidates(t *testing.T) {
	m := newTestManager(t, 1)
	m.peers["A"].AmChoked = false
	assert.Equal(t, "", m.pickOptimistic())
}

func TestOptimisticPickPersistsAcrossRounds(t *testing.T) {
	m := newTestManager(t, 3)

	m.peers["A"].PeerInterested = true
	m.peers["B"].PeerInterested = true
	m.peers["C"].PeerInterested = true

	for _, p := range m.peers {
		p.RecordRates(0, 0)
		p.RecordRates(0, 0)
	}
	m.peers["A"].RecordRates(0, 100)
	m.peers["A"].RecordRates(0, 100)
	m.peers["B"].RecordRates(0, 50)
	m.peers["B"].RecordRates(0, 50)
	// C ranks lowest and stays choked by rank, but should be kept unchoked
	// across rounds 1 and 2 if picked optimistic in round 0.
	m.peers["C"].RecordRates(0, 0)
	m.peers["C"].RecordRates(0, 0)

	m.chokeRound = 0
	m.runChokePolicy()
	picked := m.optimisticAddr
	require.NotEmpty(t, picked, "round 0 must pick an optimistic peer")
	require.True(t, m.peers[picked].Optimistic)

	for round := 0; round < 2; round++ {
		m.runChokePolicy()
		assert.Equal(t, picked, m.optimisticAddr,
			"optimistic pick must persist until the next round-0 tick")
		assert.True(t, m.peers[picked].Optimistic)
		assert.False(t, m.peers[picked].AmChoked,
			"optimistic peer must stay unchoked across rounds 1 and 2")
	}
}
