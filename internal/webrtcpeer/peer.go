package webrtcpeer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/session"
)

// Peer wraps a *webrtc.PeerConnection behind the session.Transport surface.
//
// The negotiation state machine lives in the session package; this type only
// translates between its vocabulary and pion's.
type Peer struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	constraints session.VideoConstraints

	closeOnce sync.Once
	closeErr  error
}

var _ session.Transport = (*Peer)(nil)

// NewPeer opens a peer connection against the given ICE servers.
func NewPeer(api *webrtc.API, iceServers []webrtc.ICEServer) (*Peer, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Peer{pc: pc}, nil
}

// Factory returns a session.TransportFactory producing fresh peer connections
// from a shared API. A non-nil onTrack is registered on every connection to
// observe inbound remote tracks.
func Factory(api *webrtc.API, iceServers []webrtc.ICEServer, onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) session.TransportFactory {
	return func() (session.Transport, error) {
		p, err := NewPeer(api, iceServers)
		if err != nil {
			return nil, err
		}
		if onTrack != nil {
			p.OnTrack(onTrack)
		}
		return p, nil
	}
}

func (p *Peer) AddTrack(track webrtc.TrackLocal) (session.Sender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}
	return sender, nil
}

// ApplyVideoConstraints records the outbound video caps for this connection.
// pion has no sender-level bitrate parameter; enforcement happens at the
// sample producer, which is constructed with the same caps. Recording them
// here keeps the negotiated values inspectable per connection.
func (p *Peer) ApplyVideoConstraints(c session.VideoConstraints) error {
	if c.MaxBitrateBps == 0 || c.MaxFramerate <= 0 {
		return fmt.Errorf("invalid video constraints: %d bps, %g fps", c.MaxBitrateBps, c.MaxFramerate)
	}
	p.mu.Lock()
	p.constraints = c
	p.mu.Unlock()
	return nil
}

// Constraints reports the caps recorded by ApplyVideoConstraints.
func (p *Peer) Constraints() session.VideoConstraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.constraints
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) AddICECandidate(init webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(init)
}

// OnICECandidate registers fn for locally gathered candidates. The
// end-of-gathering nil marker pion emits is swallowed; trickle peers have no
// use for it.
func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

// OnTrack registers fn for inbound remote tracks.
func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}

func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}
