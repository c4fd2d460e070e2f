package session

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/protocol"
)

// Config wires a Manager's collaborators.
type Config struct {
	Transport   TransportFactory
	Media       MediaProvider
	Send        SendFunc
	Constraints VideoConstraints
	Logger      *slog.Logger
}

// Manager owns the local media state and the peer sessions of the local
// participant, keyed by remote id. It is the only writer of that collection.
//
// A closed remote leaves a tombstone behind so a late in-flight signal cannot
// resurrect the session. Only an explicit membership event (roster snapshot or
// join notification) clears a tombstone.
type Manager struct {
	log          *slog.Logger
	newTransport TransportFactory
	media        MediaProvider
	send         SendFunc
	constraints  VideoConstraints

	mu          sync.Mutex
	sessions    map[string]*Peer
	tombstones  map[string]struct{}
	tracks      []webrtc.TrackLocal
	cameraVideo webrtc.TrackLocal
	screenVideo webrtc.TrackLocal
	started     bool
	closed      bool
}

func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		log:          log,
		newTransport: cfg.Transport,
		media:        cfg.Media,
		send:         cfg.Send,
		constraints:  cfg.Constraints,
		sessions:     make(map[string]*Peer),
		tombstones:   make(map[string]struct{}),
	}
}

// Start acquires the local media tracks. A media-capability failure is fatal
// to session initiation and is surfaced, not retried.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	tracks, err := m.media.Tracks()
	if err != nil {
		return fmt.Errorf("session: acquire local media: %w", err)
	}
	m.tracks = tracks
	for _, track := range tracks {
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			m.cameraVideo = track
			break
		}
	}
	m.started = true
	return nil
}

// HandleRoster reacts to the roster snapshot received on joining a room: the
// local participant calls every existing member.
func (m *Manager) HandleRoster(ids []string) {
	for _, id := range ids {
		peer, created := m.ensure(id, RoleCaller, true)
		if !created {
			continue
		}
		if err := peer.StartOffer(); err != nil {
			m.log.Error("offer failed", "remote", id, "err", err)
		}
	}
}

// HandleUserJoined pre-creates a callee session for a newly joined member.
// The joiner drives the offer; this side only needs its tracks attached and
// callbacks armed before that offer arrives.
func (m *Manager) HandleUserJoined(id string) {
	m.ensure(id, RoleCallee, true)
}

// HandleSignal dispatches a relayed negotiation payload. A payload from an
// unknown remote creates the session reactively with the callee role.
func (m *Manager) HandleSignal(from string, payload protocol.SignalPayload) {
	peer, _ := m.ensure(from, RoleCallee, false)
	if peer == nil {
		m.log.Debug("ignoring signal for closed session", "remote", from)
		return
	}

	switch {
	case payload.SDP != nil:
		desc, err := payload.SDP.ToPion()
		if err != nil {
			m.log.Warn("bad session description", "remote", from, "err", err)
			return
		}
		if err := peer.HandleDescription(desc); err != nil {
			m.log.Error("apply description failed", "remote", from, "err", err)
		}
	case payload.Candidate != nil:
		if err := peer.HandleCandidate(payload.Candidate.ToPion()); err != nil {
			m.log.Error("apply candidate failed", "remote", from, "err", err)
		}
	}
}

// HandleUserLeft tears down the session for a departed remote.
func (m *Manager) HandleUserLeft(id string) {
	m.mu.Lock()
	peer := m.sessions[id]
	delete(m.sessions, id)
	m.tombstones[id] = struct{}{}
	m.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
}

// StartScreenShare swaps the outbound video of every live session to a screen
// capture track, in place. Sessions created mid-swap get the screen track
// too, since creation and replacement serialize on the same lock.
func (m *Manager) StartScreenShare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("session: screen share before media start")
	}
	if m.screenVideo != nil {
		return nil
	}
	screen, err := m.media.ScreenTrack()
	if err != nil {
		return fmt.Errorf("session: acquire screen track: %w", err)
	}
	m.screenVideo = screen
	m.swapOutboundVideoLocked(screen)
	return nil
}

// StopScreenShare reverts every session to the camera track.
func (m *Manager) StopScreenShare() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screenVideo == nil {
		return
	}
	m.screenVideo = nil
	m.swapOutboundVideoLocked(m.cameraVideo)
}

func (m *Manager) swapOutboundVideoLocked(track webrtc.TrackLocal) {
	for i, t := range m.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			m.tracks[i] = track
		}
	}
	for id, peer := range m.sessions {
		if err := peer.ReplaceVideoTrack(track); err != nil {
			m.log.Error("video track swap failed", "remote", id, "err", err)
		}
	}
}

// SessionCount reports the number of live peer sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Session returns the live session for a remote id, if any.
func (m *Manager) Session(id string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Close tears down every session. Subsequent events are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	peers := make([]*Peer, 0, len(m.sessions))
	for _, peer := range m.sessions {
		peers = append(peers, peer)
	}
	m.sessions = make(map[string]*Peer)
	m.mu.Unlock()

	for _, peer := range peers {
		peer.Close()
	}
}

// ensure returns the session for id, creating it if needed. Duplicate
// creation is a no-op returning the existing session: the roster-driven
// caller path and the signaling-driven callee path can race for the same
// remote. membershipEvent marks creation triggered by an authoritative
// roster/joined event, which clears any tombstone; a bare signal from a
// tombstoned remote stays dead.
func (m *Manager) ensure(id string, role Role, membershipEvent bool) (peer *Peer, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.started {
		return nil, false
	}
	if membershipEvent {
		delete(m.tombstones, id)
	} else if _, dead := m.tombstones[id]; dead {
		return nil, false
	}
	if existing, ok := m.sessions[id]; ok {
		return existing, false
	}

	transport, err := m.newTransport()
	if err != nil {
		m.log.Error("transport creation failed", "remote", id, "err", err)
		return nil, false
	}

	tracks := make([]webrtc.TrackLocal, len(m.tracks))
	copy(tracks, m.tracks)

	peer, err = newPeer(id, role, transport, tracks, m.constraints, m.send, m.log)
	if err != nil {
		m.log.Error("session creation failed", "remote", id, "err", err)
		return nil, false
	}
	m.sessions[id] = peer
	m.log.Info("session created", "remote", id, "role", role.String())
	return peer, true
}
