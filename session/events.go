package session

import (
	"time"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/peerconn"
)

// event describes an external occurrence which mutates Manager state. While
// an event is applying, it is guaranteed to be the only accessor of that
// state.
type event interface {
	apply(*Manager)
}

// eventLoop is a serialized queue of events applied one at a time against a
// single Manager.
type eventLoop interface {
	send(event) bool
	sendTimeout(e event, timeout time.Duration) error
	run(*Manager)
	stop()
}

type baseEventLoop struct {
	events chan event
	done   chan struct{}
}

func newEventLoop() *baseEventLoop {
	return &baseEventLoop{
		events: make(chan event),
		done:   make(chan struct{}),
	}
}

// send enqueues e. Must never be called by the goroutine running l (i.e.
// from within an apply method), else deadlock. Returns false if l has
// stopped.
func (l *baseEventLoop) send(e event) bool {
	select {
	case l.events <- e:
		return true
	case <-l.done:
		return false
	}
}

func (l *baseEventLoop) sendTimeout(e event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l.events <- e:
		return nil
	case <-l.done:
		return errManagerStopped
	case <-timer.C:
		return errSendEventTimedOut
	}
}

func (l *baseEventLoop) run(m *Manager) {
	for {
		select {
		case e := <-l.events:
			e.apply(m)
		case <-l.done:
			return
		}
	}
}

func (l *baseEventLoop) stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// peerCmdEvent wraps an inbound PeerCmd decision request as an event.
type peerCmdEvent struct {
	cmd PeerCmd
}

func (e peerCmdEvent) apply(m *Manager) {
	m.handlePeerCmd(e.cmd)
}

// incomingConnEvent is raised after an inbound TCP accept has completed its
// handshake and yielded a live connection.
type incomingConnEvent struct {
	addr   string
	peerID core.PeerID
	conn   *peerconn.Conn
	err    error
}

func (e incomingConnEvent) apply(m *Manager) {
	m.handleIncomingConn(e)
}

// outgoingConnEvent is raised after a candidate-queue dial/handshake has
// completed (successfully or not).
type outgoingConnEvent struct {
	addr   string
	peerID core.PeerID
	conn   *peerconn.Conn
	err    error
}

func (e outgoingConnEvent) apply(m *Manager) {
	m.handleOutgoingConn(e)
}

// trackerResultEvent carries the candidate peers returned by a tracker
// poll.
type trackerResultEvent struct {
	peers []TrackerPeer
	err   error
}

func (e trackerResultEvent) apply(m *Manager) {
	m.handleTrackerResult(e)
}

// extractorDoneEvent is raised when the extractor task finishes (or fails)
// unpacking a completed download.
type extractorDoneEvent struct {
	err error
}

func (e extractorDoneEvent) apply(m *Manager) {
	m.handleExtractorDone(e)
}

// connClosedEvent is raised by peerconn.Conn's own lifecycle (e.g. a read
// or write error, or the remote hanging up) rather than by a handler's
// explicit KillReq. The Manager locates the owning peer record by scanning
// for the matching Conn, since the Conn itself does not know its session
// address.
type connClosedEvent struct {
	conn *peerconn.Conn
}

func (e connClosedEvent) apply(m *Manager) {
	for addr, p := range m.peers {
		if p.Conn == e.conn {
			m.killPeer(addr, "connection closed")
			return
		}
	}
}

// chokeTickEvent drives one round of the choke/unchoke policy.
type chokeTickEvent struct{}

func (e chokeTickEvent) apply(m *Manager) {
	m.runChokePolicy()
	m.reportProgress()
}

// shutdownEvent tears down the Manager: every handler is killed and the
// event loop exits.
type shutdownEvent struct {
	done chan struct{}
}

func (e shutdownEvent) apply(m *Manager) {
	m.handleShutdown()
	close(e.done)
}
