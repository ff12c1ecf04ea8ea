// Package piece tracks piece ownership and availability for the session,
// and the per-peer receive/transmit buffers used while a piece transfer is
// in flight.
package piece

import (
	"fmt"
	"math/rand"
	"sort"
)

// Status is the lifecycle state of one piece from the local peer's point of
// view. Reservation is exclusive: at most one peer may hold a piece
// Reserved at a time.
type Status int

const (
	Missing Status = iota
	Reserved
	Have
)

func (s Status) String() string {
	switch s {
	case Missing:
		return "Missing"
	case Reserved:
		return "Reserved"
	case Have:
		return "Have"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Registry owns the piece-status vector and per-piece peer availability
// counts. It is not safe for concurrent use; the session task is its sole
// owner, exactly as it is the sole owner of every other piece of global
// state.
type Registry struct {
	status       []Status
	availability []int
}

// NewRegistry creates a Registry with every piece Missing and zero
// availability.
func NewRegistry(numPieces int) *Registry {
	return &Registry{
		status:       make([]Status, numPieces),
		availability: make([]int, numPieces),
	}
}

// Len returns the number of pieces tracked.
func (r *Registry) Len() int { return len(r.status) }

// Status returns the current status of piece index.
func (r *Registry) Status(index int) Status { return r.status[index] }

// Complete reports whether every piece is Have.
func (r *Registry) Complete() bool {
	for _, s := range r.status {
		if s != Have {
			return false
		}
	}
	return true
}

// CompleteCount returns the number of pieces currently marked Have.
func (r *Registry) CompleteCount() int {
	n := 0
	for _, s := range r.status {
		if s == Have {
			n++
		}
	}
	return n
}

// Bitfield renders the current Have set as a wire-format bitfield payload.
func (r *Registry) Bitfield() []byte {
	buf := make([]byte, (len(r.status)+7)/8)
	for i, s := range r.status {
		if s == Have {
			buf[i/8] |= byte(0x80 >> uint(i%8))
		}
	}
	return buf
}

// RecordHave increments the availability count for index, as observed via a
// peer's Bitfield or Have message.
func (r *Registry) RecordHave(index int) {
	r.availability[index]++
}

// ForgetHave decrements the availability count for index, as observed when
// a peer carrying it disconnects.
func (r *Registry) ForgetHave(index int) {
	if r.availability[index] > 0 {
		r.availability[index]--
	}
}

// Reserve marks index Reserved. Callers must only do so for a piece
// returned by Select, which is already known Missing.
func (r *Registry) Reserve(index int) {
	r.status[index] = Reserved
}

// Release reverts index to Missing, e.g. on choke or peer disconnect while
// a reservation for it was outstanding.
func (r *Registry) Release(index int) {
	if r.status[index] == Reserved {
		r.status[index] = Missing
	}
}

// MarkHave marks index Have, e.g. on successful piece verification.
func (r *Registry) MarkHave(index int) {
	r.status[index] = Have
}

// Select implements rarest-first piece selection with a uniform random
// tie-break: among pieces that are Missing and that peerHas reports the
// peer holds, the candidates are shuffled and then stably sorted ascending
// by availability count, and the first is returned. Returns ok=false if no
// such piece exists.
func Select(r *Registry, peerHas func(index int) bool) (index int, ok bool) {
	var candidates []int
	for i, s := range r.status {
		if s == Missing && peerHas(i) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.availability[candidates[i]] < r.availability[candidates[j]]
	})
	return candidates[0], true
}
