package session

import "github.com/lindris/peerengine/core"

// BroadCmd is a command the session broadcasts to every connected peer
// handler over its per-handler broadcast channel.
type BroadCmd interface {
	isBroadCmd()
}

// SendHaveBroadcast tells every handler to emit Have(index) — immediately if
// the peer is currently unchoked by us, or buffered until the next Unchoke.
type SendHaveBroadcast struct {
	Index int
}

func (SendHaveBroadcast) isBroadCmd() {}

// SendOwnStateBroadcast carries the result of a choke-policy tick: for each
// peer address present in the map, the handler emits Choke or Unchoke
// depending on the flag, and only for peers actually named.
type SendOwnStateBroadcast struct {
	AmChoked map[string]bool
}

func (SendOwnStateBroadcast) isBroadCmd() {}

// Decision is the reply a handler receives after asking the session how to
// react to a dispatched inbound frame. The Variant field discriminates
// which other fields are meaningful.
type Decision struct {
	Variant DecisionVariant

	// Request holds the block to request, for SendRequest and
	// SendInterestedAndRequest.
	Request BlockRequest

	// WithAmUnchoked and AmInterested apply to SendState.
	WithAmUnchoked bool
	AmInterested   bool

	// PieceIndex and PieceHash apply to LoadAndSendPiece.
	PieceIndex int
	PieceHash  [20]byte

	// Reason applies to PrepareKill.
	Reason string

	// Bitfield applies to SendBitfield, carrying our current piece bitfield
	// for the handler to transmit right after the handshake.
	Bitfield []byte
}

// BlockRequest names a single block to request from a peer, addressed by
// piece index plus offset/length within that piece.
type BlockRequest struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

// DecisionVariant enumerates the possible replies a handler may receive
// from the session for a given dispatched frame.
type DecisionVariant int

const (
	// Ignore means take no action.
	Ignore DecisionVariant = iota
	// SendInterestedAndRequest means emit Interested, then the named Request.
	SendInterestedAndRequest
	// SendRequest means emit the named Request only.
	SendRequest
	// SendInterested means emit Interested only.
	SendInterested
	// SendNotInterested means emit NotInterested.
	SendNotInterested
	// SendState means emit Unchoke (if WithAmUnchoked) then Interested or
	// NotInterested per AmInterested.
	SendState
	// LoadAndSendPiece means load the named piece from storage, cache it as
	// the handler's PieceTx, and serve the originally-requested block.
	LoadAndSendPiece
	// PrepareKill means the handler should terminate its event loop cleanly.
	PrepareKill
	// SendBitfield means emit a Bitfield frame carrying Decision.Bitfield,
	// the reply to Init.
	SendBitfield
)

// PeerCmd is a decision request sent from a peer handler to the session,
// carrying a one-shot reply channel.
type PeerCmd struct {
	Addr string
	Kind PeerCmdKind

	// PeerID is set only on Init.
	PeerID core.PeerID

	// Index applies to RecvHave.
	Index int

	// Bits applies to RecvBitfield.
	Bits []byte

	// ReqIndex/ReqBegin/ReqLength apply to RecvRequest.
	ReqIndex  uint32
	ReqBegin  uint32
	ReqLength uint32

	// DownloadRate/UploadRate apply to SyncStats.
	DownloadRate uint32
	UploadRate   uint32

	// Reason applies to KillReq.
	Reason string

	Reply chan Decision
}

// PeerCmdKind enumerates the decision requests a handler may send.
type PeerCmdKind int

const (
	Init PeerCmdKind = iota
	RecvChoke
	RecvUnchoke
	RecvInterested
	RecvNotInterested
	RecvHave
	RecvBitfield
	RecvRequest
	PieceDone
	KillReq
	SyncStats
)
