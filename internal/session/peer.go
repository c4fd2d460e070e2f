package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/protocol"
)

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unknown"
	}
}

type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswered
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswered:
		return "answered"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is the negotiation state machine for one remote participant.
//
// All transitions are serialized on mu. ICE gathering runs concurrently with
// the signaling states: locally discovered candidates are transmitted as they
// appear, and remote candidates that arrive before the remote description are
// buffered, never dropped.
type Peer struct {
	remoteID  string
	role      Role
	log       *slog.Logger
	send      SendFunc
	transport Transport

	// closed is checked lock-free by transport callbacks so a synchronous
	// callback during a transition cannot deadlock.
	closed atomic.Bool

	mu            sync.Mutex
	state         State
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
	heldAnswer    *webrtc.SessionDescription
	videoSender   Sender
}

// newPeer attaches the local tracks and applies the outbound video
// constraints before any negotiation message can be sent or processed.
func newPeer(remoteID string, role Role, transport Transport, tracks []webrtc.TrackLocal, constraints VideoConstraints, send SendFunc, log *slog.Logger) (*Peer, error) {
	p := &Peer{
		remoteID:  remoteID,
		role:      role,
		log:       log.With("remote", remoteID, "role", role.String()),
		send:      send,
		transport: transport,
		state:     StateIdle,
	}

	for _, track := range tracks {
		sender, err := transport.AddTrack(track)
		if err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("session: attach %s track: %w", track.Kind(), err)
		}
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			p.videoSender = sender
		}
	}
	if err := transport.ApplyVideoConstraints(constraints); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("session: apply video constraints: %w", err)
	}

	transport.OnICECandidate(p.onLocalCandidate)
	transport.OnConnectionStateChange(p.onConnectionState)

	return p, nil
}

func (p *Peer) RemoteID() string { return p.remoteID }

func (p *Peer) Role() Role { return p.role }

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StartOffer runs the caller path: local offer, set as local description,
// transmit. An answer that raced ahead of the offer is applied afterwards.
func (p *Peer) StartOffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return nil
	}

	offer, err := p.transport.CreateOffer()
	if err != nil {
		return fmt.Errorf("session: create offer for %s: %w", p.remoteID, err)
	}
	if err := p.transport.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("session: set local offer for %s: %w", p.remoteID, err)
	}
	p.state = StateOfferSent

	desc := protocol.DescriptionFromPion(offer)
	if err := p.send(p.remoteID, protocol.SignalPayload{SDP: &desc}); err != nil {
		return fmt.Errorf("session: send offer to %s: %w", p.remoteID, err)
	}

	if held := p.heldAnswer; held != nil {
		p.heldAnswer = nil
		return p.applyAnswerLocked(*held)
	}
	return nil
}

// HandleDescription applies a remote offer or answer.
func (p *Peer) HandleDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return nil
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return p.applyOfferLocked(desc)
	case webrtc.SDPTypeAnswer:
		switch p.state {
		case StateOfferSent:
			return p.applyAnswerLocked(desc)
		case StateIdle:
			// The answer outran our offer transition. Hold it; StartOffer
			// applies it once the offer is out.
			p.heldAnswer = &desc
			p.log.Debug("holding early answer")
			return nil
		default:
			// Duplicate or stale answer; the negotiation has moved past it.
			p.log.Debug("ignoring answer", "state", p.state.String())
			return nil
		}
	default:
		return fmt.Errorf("session: unsupported description type %s from %s", desc.Type, p.remoteID)
	}
}

func (p *Peer) applyOfferLocked(offer webrtc.SessionDescription) error {
	if err := p.transport.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("session: set remote offer from %s: %w", p.remoteID, err)
	}
	p.state = StateOfferReceived
	p.remoteDescSet = true
	if err := p.flushCandidatesLocked(); err != nil {
		return err
	}

	answer, err := p.transport.CreateAnswer()
	if err != nil {
		return fmt.Errorf("session: create answer for %s: %w", p.remoteID, err)
	}
	if err := p.transport.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("session: set local answer for %s: %w", p.remoteID, err)
	}
	p.state = StateAnswered

	desc := protocol.DescriptionFromPion(answer)
	if err := p.send(p.remoteID, protocol.SignalPayload{SDP: &desc}); err != nil {
		return fmt.Errorf("session: send answer to %s: %w", p.remoteID, err)
	}
	return nil
}

func (p *Peer) applyAnswerLocked(answer webrtc.SessionDescription) error {
	if err := p.transport.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("session: set remote answer from %s: %w", p.remoteID, err)
	}
	p.state = StateAnswered
	p.remoteDescSet = true
	return p.flushCandidatesLocked()
}

// HandleCandidate applies a remote ICE candidate, buffering it if the remote
// description is not in place yet.
func (p *Peer) HandleCandidate(init webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return nil
	}
	if !p.remoteDescSet {
		p.pending = append(p.pending, init)
		return nil
	}
	if err := p.transport.AddICECandidate(init); err != nil {
		return fmt.Errorf("session: add candidate from %s: %w", p.remoteID, err)
	}
	return nil
}

func (p *Peer) flushCandidatesLocked() error {
	for _, init := range p.pending {
		if err := p.transport.AddICECandidate(init); err != nil {
			return fmt.Errorf("session: flush candidate from %s: %w", p.remoteID, err)
		}
	}
	p.pending = nil
	return nil
}

// ReplaceVideoTrack swaps the outbound video track in place. The negotiated
// session is untouched: no new offer, no state change.
func (p *Peer) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed || p.videoSender == nil {
		return nil
	}
	if err := p.videoSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("session: replace video track for %s: %w", p.remoteID, err)
	}
	return nil
}

// Close tears the session down. Any buffered candidates and in-flight
// negotiation become void, and no further signaling is emitted for this
// remote.
func (p *Peer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	p.state = StateClosed
	p.pending = nil
	p.heldAnswer = nil
	p.mu.Unlock()

	if err := p.transport.Close(); err != nil {
		p.log.Warn("transport close failed", "err", err)
	}
}

func (p *Peer) onLocalCandidate(init webrtc.ICECandidateInit) {
	if p.closed.Load() {
		return
	}
	// Candidates go out immediately, independent of negotiation state; the
	// receiving side buffers until its remote description exists.
	cand := protocol.CandidateFromPion(init)
	if err := p.send(p.remoteID, protocol.SignalPayload{Candidate: &cand}); err != nil {
		p.log.Warn("failed to send candidate", "err", err)
	}
}

func (p *Peer) onConnectionState(state webrtc.PeerConnectionState) {
	if p.closed.Load() {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.mu.Lock()
		if p.state != StateClosed {
			p.state = StateConnected
		}
		p.mu.Unlock()
		p.log.Info("peer connected")
	case webrtc.PeerConnectionStateFailed:
		p.log.Warn("peer connection failed")
	}
}
