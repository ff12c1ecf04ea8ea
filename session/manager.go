package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/peerconn"
	"github.com/lindris/peerengine/piece"
	"github.com/lindris/peerengine/progress"
)

// TrackerPeer is a single (address, peer id) pair returned by a tracker
// poll.
type TrackerPeer struct {
	Addr   string
	PeerID core.PeerID
}

// Tracker is the external collaborator that resolves candidate peers for
// the torrent's info hash. A concrete HTTP implementation lives outside
// this package; the session only depends on this interface.
type Tracker interface {
	Announce(infoHash core.InfoHash, numWant int) ([]TrackerPeer, error)
}

// Extractor is the external collaborator spawned once the download
// completes, to unpack the finished torrent's files. The session only
// depends on this interface.
type Extractor interface {
	Extract() error
}

// HandlerSpawner starts a per-peer handler task for an established
// connection. It must not block; the handler runs its own event loop in a
// goroutine and is responsible for sending a KillReq PeerCmd to mgr when it
// terminates.
type HandlerSpawner func(mgr *Manager, addr string, conn *peerconn.Conn, broadcast <-chan BroadCmd)

// Manager is the session's single cooperative task: it owns every peer
// record, the piece-status registry, the choke/unchoke policy, and
// dispatches PeerCmd decisions from per-peer handlers.
type Manager struct {
	config     Config
	info       *metainfo.Info
	infoHash   core.InfoHash
	peerID     core.PeerID
	clock      clock.Clock
	stats      tally.Scope
	logger     *zap.SugaredLogger
	handshaker *peerconn.Handshaker
	tracker    Tracker
	extractor  Extractor
	spawn      HandlerSpawner
	view       progress.View

	pieces *piece.Registry

	eventLoop *baseEventLoop

	peers      map[string]*PeerRecord
	broadcasts map[string]chan BroadCmd

	candidates []TrackerPeer

	chokeRound int

	// optimisticAddr is the peer picked for optimistic unchoke on the last
	// chokeRound == 0 tick. It persists across the rounds that follow until
	// the next round-0 pick replaces it.
	optimisticAddr string

	extractorSpawned bool

	// notInterested is only changed by the event loop, but is atomic so
	// listenLoop can read it to gate inbound accepts without touching
	// Manager state directly.
	notInterested atomic.Int32

	// broadcastBufferSize bounds each peer's BroadCmd mailbox.
	broadcastBufferSize int

	listener net.Listener

	chokeTick <-chan time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a session Manager for the given torrent. It does not
// start any goroutines; call Start to begin accepting connections and
// running the event loop.
func NewManager(
	config Config,
	info *metainfo.Info,
	peerID core.PeerID,
	stats tally.Scope,
	logger *zap.SugaredLogger,
	clk clock.Clock,
	tracker Tracker,
	extractor Extractor,
	spawn HandlerSpawner,
) (*Manager, error) {
	config = config.applyDefaults()

	if clk == nil {
		clk = clock.New()
	}
	stats = stats.Tagged(map[string]string{"module": "session"})

	m := &Manager{
		config:     config,
		info:       info,
		infoHash:   info.InfoHash,
		peerID:     peerID,
		clock:      clk,
		stats:      stats,
		logger:     logger,
		tracker:    tracker,
		extractor:  extractor,
		spawn:      spawn,
		pieces:     piece.NewRegistry(info.NumPieces()),
		eventLoop:  newEventLoop(),
		peers:               make(map[string]*PeerRecord),
		broadcasts:          make(map[string]chan BroadCmd),
		broadcastBufferSize: 16,
		done:                make(chan struct{}),
	}

	handshaker, err := peerconn.NewHandshaker(config.Conn, stats, clk, peerID, m, logger)
	if err != nil {
		return nil, fmt.Errorf("conn handshaker: %s", err)
	}
	m.handshaker = handshaker

	return m, nil
}

// Start begins listening for inbound connections and runs the event and
// ticker loops in background goroutines, then performs an initial tracker
// poll.
func (m *Manager) Start() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", m.config.ListenPort))
	if err != nil {
		return fmt.Errorf("listen: %s", err)
	}
	m.listener = l
	m.chokeTick = m.clock.Tick(m.config.ChokeInterval)

	m.wg.Add(3)
	go m.runEventLoop()
	go m.listenLoop()
	go m.tickerLoop()

	m.pollTracker()

	return nil
}

// Stop tears down the event loop, listener, and every connected handler.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.log().Info("Stopping session manager")
		close(m.done)
		if m.listener != nil {
			m.listener.Close()
		}
		replyDone := make(chan struct{})
		if m.eventLoop.send(shutdownEvent{done: replyDone}) {
			<-replyDone
		}
		m.eventLoop.stop()
		m.wg.Wait()
	})
}

// Addr returns the listener's bound address. Only valid after Start
// returns successfully; mainly useful for tests that bind to port 0.
func (m *Manager) Addr() net.Addr {
	return m.listener.Addr()
}

// SetProgressView registers a destination for periodic download snapshots,
// pushed once per choke tick. Must be called before Start; nil disables
// reporting (the default).
func (m *Manager) SetProgressView(v progress.View) {
	m.view = v
}

// reportProgress pushes a snapshot of current download state to the
// registered view, if any. Called once per choke tick alongside the
// choke/unchoke policy since both run on the same cadence.
func (m *Manager) reportProgress() {
	if m.view == nil {
		return
	}
	var down, up uint32
	for _, p := range m.peers {
		// PeerRecord rates are from the peer's side: its upload to us is our
		// download, and its download from us is our upload.
		down += p.UploadRate()
		up += p.DownloadRate()
	}
	m.view.Update(progress.Snapshot{
		PiecesComplete: m.pieces.CompleteCount(),
		PiecesTotal:    m.pieces.Len(),
		DownloadRate:   float64(down),
		UploadRate:     float64(up),
	})
}

func (m *Manager) runEventLoop() {
	defer m.wg.Done()
	m.eventLoop.run(m)
}

func (m *Manager) listenLoop() {
	defer m.wg.Done()
	for {
		nc, err := m.listener.Accept()
		if err != nil {
			m.log().Infof("Listener closed, exiting accept loop: %s", err)
			return
		}
		if int(m.notInterested.Load()) >= m.config.MaxNotInterested {
			nc.Close()
			continue
		}
		go func() {
			pc, err := m.handshaker.Accept(nc)
			if err != nil {
				m.log().Infof("Rejecting incoming handshake: %s", err)
				nc.Close()
				return
			}
			if pc.InfoHash() != m.infoHash {
				m.log().Infof("Incoming handshake for unknown info hash, closing")
				pc.Close()
				return
			}
			addr := nc.RemoteAddr().String()
			peerID := pc.PeerID()
			c, err := m.handshaker.Establish(pc)
			if !m.eventLoop.send(incomingConnEvent{addr: addr, peerID: peerID, conn: c, err: err}) && c != nil {
				c.Close()
			}
		}()
	}
}

func (m *Manager) tickerLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.chokeTick:
			m.eventLoop.send(chokeTickEvent{})
		case <-m.done:
			return
		}
	}
}

// pollTracker announces to the tracker in the background and delivers the
// result as an event.
func (m *Manager) pollTracker() {
	if m.tracker == nil {
		return
	}
	go func() {
		numWant := m.config.MaxUnchoked + m.config.MaxOptimistic
		peers, err := m.tracker.Announce(m.infoHash, numWant)
		if err != nil {
			m.eventLoop.send(trackerResultEvent{err: err})
			return
		}
		m.eventLoop.send(trackerResultEvent{peers: peers})
	}()
}

// dialOutgoing performs an outbound handshake against a candidate peer and
// delivers the outcome as an event. Runs on its own goroutine.
func (m *Manager) dialOutgoing(p TrackerPeer) {
	go func() {
		c, err := m.handshaker.Initialize(p.PeerID, p.Addr, m.infoHash)
		m.eventLoop.send(outgoingConnEvent{addr: p.Addr, peerID: p.PeerID, conn: c, err: err})
	}()
}

// SendPeerCmd delivers a decision request from a peer handler and blocks
// for the reply. Returns an error if the manager has stopped.
func (m *Manager) SendPeerCmd(cmd PeerCmd) (Decision, error) {
	cmd.Reply = make(chan Decision, 1)
	if !m.eventLoop.send(peerCmdEvent{cmd: cmd}) {
		return Decision{}, errManagerStopped
	}
	return <-cmd.Reply, nil
}

// ConnClosed implements peerconn.Events. It is invoked from the Conn's own
// goroutines, so it only enqueues an event rather than touching Manager
// state directly.
func (m *Manager) ConnClosed(c *peerconn.Conn) {
	m.eventLoop.send(connClosedEvent{conn: c})
}

func (m *Manager) broadcast(cmd BroadCmd) {
	for _, ch := range m.broadcasts {
		select {
		case ch <- cmd:
		default:
			// Broadcast channels are buffered and handlers drain promptly;
			// a full channel means the handler is already dying.
		}
	}
}

func (m *Manager) log(args ...interface{}) *zap.SugaredLogger {
	return m.logger.With(args...)
}
