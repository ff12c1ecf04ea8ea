package piece

import "fmt"

// PieceTx is the handler-owned state for a piece currently loaded from disk
// to serve incoming Requests.
type PieceTx struct {
	Index  int
	Buffer []byte
}

// NewPieceTx wraps a buffer already loaded from disk for index.
func NewPieceTx(index int, buffer []byte) *PieceTx {
	return &PieceTx{Index: index, Buffer: buffer}
}

// Block returns the byte range [begin, begin+length) of Buffer, or a
// PieceOutOfRange error if it does not lie wholly within the buffer.
func (tx *PieceTx) Block(begin, length uint32) ([]byte, error) {
	end := uint64(begin) + uint64(length)
	if end > uint64(len(tx.Buffer)) {
		return nil, &PieceError{
			Kind: PieceOutOfRange,
			What: fmt.Sprintf("begin=%d length=%d exceeds buffer of %d bytes", begin, length, len(tx.Buffer)),
		}
	}
	return tx.Buffer[begin:end], nil
}
