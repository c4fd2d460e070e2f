package webrtcpeer_test

import (
	"testing"

	"github.com/owes2005/video-call-project/internal/config"
	"github.com/owes2005/video-call-project/internal/session"
	"github.com/owes2005/video-call-project/internal/webrtcpeer"
)

func newLocalPeer(t *testing.T) *webrtcpeer.Peer {
	t.Helper()
	api, err := webrtcpeer.NewAPI(config.Config{})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	p, err := webrtcpeer.NewPeer(api, nil)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestApplyVideoConstraints(t *testing.T) {
	p := newLocalPeer(t)

	want := session.VideoConstraints{MaxBitrateBps: 800_000, MaxFramerate: 24}
	if err := p.ApplyVideoConstraints(want); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := p.Constraints(); got != want {
		t.Fatalf("constraints = %#v, want %#v", got, want)
	}

	if err := p.ApplyVideoConstraints(session.VideoConstraints{}); err == nil {
		t.Fatalf("zero constraints must be rejected")
	}
	if err := p.ApplyVideoConstraints(session.VideoConstraints{MaxBitrateBps: 1, MaxFramerate: -1}); err == nil {
		t.Fatalf("negative framerate must be rejected")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newLocalPeer(t)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNewAPIAppliesPortRange(t *testing.T) {
	cfg := config.Config{WebRTCUDPPortRange: &config.PortRange{Min: 50000, Max: 50010}}
	if _, err := webrtcpeer.NewAPI(cfg); err != nil {
		t.Fatalf("new api with port range: %v", err)
	}
	// An inverted range is rejected by the setting engine.
	bad := config.Config{WebRTCUDPPortRange: &config.PortRange{Min: 50010, Max: 50000}}
	if _, err := webrtcpeer.NewAPI(bad); err == nil {
		t.Fatalf("inverted port range must be rejected")
	}
}
