// Package session implements the client-side peer-connection lifecycle: one
// negotiation state machine per remote participant, and a manager that owns
// the collection plus the shared local media tracks.
//
// The package works against capability interfaces rather than a concrete
// WebRTC stack; internal/webrtcpeer provides the pion-backed implementation.
package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/protocol"
)

// Sender is an outbound track binding that supports in-place replacement.
// *webrtc.RTPSender satisfies it.
type Sender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(webrtc.TrackLocal) error
}

// Transport is the peer-connection capability a Peer drives: offer/answer and
// ICE primitives plus track attachment. Implementations must deliver
// OnICECandidate and OnConnectionStateChange callbacks from at most one
// goroutine at a time.
type Transport interface {
	AddTrack(webrtc.TrackLocal) (Sender, error)
	ApplyVideoConstraints(VideoConstraints) error

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	Close() error
}

// TransportFactory creates the transport for a new peer session.
type TransportFactory func() (Transport, error)

// MediaProvider supplies the local tracks shared across all peer sessions.
// Only the Manager calls it.
type MediaProvider interface {
	// Tracks returns the local capture tracks. Failure is fatal to session
	// initiation and is not retried.
	Tracks() ([]webrtc.TrackLocal, error)
	// ScreenTrack returns a screen-capture video track on demand.
	ScreenTrack() (webrtc.TrackLocal, error)
}

// SendFunc transmits a signaling payload to a remote participant.
type SendFunc func(to string, payload protocol.SignalPayload) error

// VideoConstraints bound each peer's outbound video. In a mesh, egress grows
// linearly with peer count, so the per-peer caps are what keeps total
// bandwidth bounded.
type VideoConstraints struct {
	MaxBitrateBps uint64
	MaxFramerate  float64
}
