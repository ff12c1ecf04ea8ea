package session

import (
	"math/rand"
	"sort"
)

// runChokePolicy executes one tick of the choke/unchoke policy. It must
// only be called from the event loop goroutine.
func (m *Manager) runChokePolicy() {
	for _, p := range m.peers {
		if !p.RatesReady() {
			// Not every peer has reported rates yet; skip this tick
			// entirely per step 1.
			return
		}
	}

	// The optimistic pick persists across MaxOptimisticRounds ticks; it is
	// only reconsidered on round 0, and even then only replaced if a new
	// candidate is actually found.
	if m.chokeRound == 0 {
		if addr := m.pickOptimistic(); addr != "" {
			m.optimisticAddr = addr
		}
	}
	optimisticAddr := m.optimisticAddr

	seeding := m.pieces.Complete()

	type ranked struct {
		addr string
		peer *PeerRecord
		rank uint32
	}
	all := make([]ranked, 0, len(m.peers))
	for addr, p := range m.peers {
		var rank uint32
		if seeding {
			rank = p.DownloadRate()
		} else {
			rank = p.UploadRate()
		}
		all = append(all, ranked{addr: addr, peer: p, rank: rank})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].rank > all[j].rank })

	newChoked := make(map[string]bool)

	for i, r := range all {
		p := r.peer
		if i < m.config.MaxUnchoked {
			if r.addr == optimisticAddr {
				continue
			}
			if p.AmChoked && p.PeerInterested {
				newChoked[r.addr] = false
			} else if !p.AmChoked && !p.PeerInterested {
				newChoked[r.addr] = true
			}
		} else {
			if !p.AmChoked {
				newChoked[r.addr] = true
			}
		}
	}

	if optimisticAddr != "" {
		if p, ok := m.peers[optimisticAddr]; ok {
			if p.AmChoked {
				newChoked[optimisticAddr] = false
			}
			p.Optimistic = true
		}
	}
	for addr, p := range m.peers {
		if addr != optimisticAddr {
			p.Optimistic = false
		}
	}

	if len(newChoked) > 0 {
		applied := make(map[string]bool, len(newChoked))
		for addr, choked := range newChoked {
			if p, ok := m.peers[addr]; ok {
				p.AmChoked = choked
				applied[addr] = choked
			}
		}
		m.broadcast(SendOwnStateBroadcast{AmChoked: applied})
	}

	m.chokeRound = (m.chokeRound + 1) % m.config.MaxOptimisticRounds
}

// pickOptimistic chooses, uniformly at random, one peer we are currently
// choking but that is interested in us. Returns "" if no candidate exists.
func (m *Manager) pickOptimistic() string {
	var candidates []string
	for addr, p := range m.peers {
		if p.AmChoked && p.PeerInterested {
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}
