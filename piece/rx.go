package piece

import (
	"crypto/sha1"
	"fmt"

	"github.com/lindris/peerengine/wire"
)

// Block names a byte range within a piece.
type Block struct {
	Begin  uint32
	Length uint32
}

// PieceRx is the handler-owned receive state for one piece in flight. The
// block queues left, inFlight, and the already-copied ranges of Buffer
// always partition [0, len(Buffer)) into BlockLength-sized chunks (the last
// possibly shorter).
type PieceRx struct {
	Index  int
	Hash   [20]byte
	Buffer []byte

	left     []Block
	inFlight []Block
}

// NewPieceRx creates a PieceRx for a piece of the given length, with every
// block initially queued in left.
func NewPieceRx(index int, hash [20]byte, length int64) *PieceRx {
	rx := &PieceRx{
		Index:  index,
		Hash:   hash,
		Buffer: make([]byte, length),
	}
	for begin := int64(0); begin < length; begin += wire.BlockLength {
		blockLen := int64(wire.BlockLength)
		if begin+blockLen > length {
			blockLen = length - begin
		}
		rx.left = append(rx.left, Block{Begin: uint32(begin), Length: uint32(blockLen)})
	}
	return rx
}

// NextRequest pops the next block to request off left and moves it to
// inFlight. Returns ok=false if left is empty.
func (rx *PieceRx) NextRequest() (Block, bool) {
	if len(rx.left) == 0 {
		return Block{}, false
	}
	b := rx.left[0]
	rx.left = rx.left[1:]
	rx.inFlight = append(rx.inFlight, b)
	return b, true
}

// ReceiveBlock copies data into Buffer at begin, provided (begin,
// len(data)) matches an outstanding in-flight request; that request is then
// removed. Returns BlockNotRequested if no match is found.
func (rx *PieceRx) ReceiveBlock(begin uint32, data []byte) error {
	for i, b := range rx.inFlight {
		if b.Begin == begin && b.Length == uint32(len(data)) {
			rx.inFlight = append(rx.inFlight[:i], rx.inFlight[i+1:]...)
			copy(rx.Buffer[begin:begin+uint32(len(data))], data)
			return nil
		}
	}
	return &PieceError{Kind: BlockNotRequested, What: fmt.Sprintf("no in-flight request for begin=%d len=%d", begin, len(data))}
}

// Done reports whether every block of the piece has been received.
func (rx *PieceRx) Done() bool {
	return len(rx.left) == 0 && len(rx.inFlight) == 0
}

// Verify reports whether Buffer hashes to Hash.
func (rx *PieceRx) Verify() bool {
	return sha1.Sum(rx.Buffer) == rx.Hash
}

// HasInFlight reports whether rx currently has at least one outstanding
// request, used to decide whether a pipeline needs refilling.
func (rx *PieceRx) HasInFlight() bool {
	return len(rx.inFlight) > 0
}
