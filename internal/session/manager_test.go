package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMedia struct {
	mu         sync.Mutex
	tracks     []webrtc.TrackLocal
	tracksErr  error
	screen     webrtc.TrackLocal
	screenErr  error
	screenReqs int
}

func (f *fakeMedia) Tracks() ([]webrtc.TrackLocal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tracksErr != nil {
		return nil, f.tracksErr
	}
	return f.tracks, nil
}

func (f *fakeMedia) ScreenTrack() (webrtc.TrackLocal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenReqs++
	if f.screenErr != nil {
		return nil, f.screenErr
	}
	return f.screen, nil
}

type managerHarness struct {
	manager    *Manager
	media      *fakeMedia
	rec        *signalRecorder
	mu         sync.Mutex
	transports []*fakeTransport
}

func (h *managerHarness) newTransport() (Transport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ft := &fakeTransport{}
	h.transports = append(h.transports, ft)
	return ft, nil
}

func (h *managerHarness) transportCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transports)
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()

	h := &managerHarness{
		media: &fakeMedia{},
		rec:   &signalRecorder{},
	}
	h.media.tracks = []webrtc.TrackLocal{newTestAudioTrack(t), newTestVideoTrack(t, "camera")}
	h.media.screen = newTestVideoTrack(t, "screen")

	h.manager = NewManager(Config{
		Transport:   h.newTransport,
		Media:       h.media,
		Send:        h.rec.send,
		Constraints: VideoConstraints{MaxBitrateBps: 800_000, MaxFramerate: 24},
		Logger:      discardLogger(),
	})
	if err := h.manager.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func TestManager_RosterCallsEveryExistingMember(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleRoster([]string{"b", "c"})

	if h.manager.SessionCount() != 2 {
		t.Fatalf("sessions = %d, want 2", h.manager.SessionCount())
	}
	offers := map[string]int{}
	for _, s := range h.rec.all() {
		if s.payload.SDP != nil && s.payload.SDP.Type == "offer" {
			offers[s.to]++
		}
	}
	if offers["b"] != 1 || offers["c"] != 1 {
		t.Fatalf("offers = %v, want exactly one to each member", offers)
	}
	for _, id := range []string{"b", "c"} {
		if got := h.manager.Session(id).Role(); got != RoleCaller {
			t.Fatalf("role for %s = %s, want caller", id, got)
		}
	}
}

func TestManager_UserJoinedCreatesCalleeWithoutOffer(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleUserJoined("b")

	peer := h.manager.Session("b")
	if peer == nil || peer.Role() != RoleCallee {
		t.Fatalf("want a callee session for b")
	}
	if len(h.rec.all()) != 0 {
		t.Fatalf("joiner drives the offer; nothing should be sent, got %#v", h.rec.all())
	}
	// The session is still fully armed: its tracks are attached and an
	// incoming offer gets answered.
	h.manager.HandleSignal("b", protocol.SignalPayload{
		SDP: &protocol.SessionDescription{Type: "offer", SDP: "offer-1"},
	})
	sent := h.rec.all()
	if len(sent) != 1 || sent[0].payload.SDP.Type != "answer" {
		t.Fatalf("sent = %#v, want one answer", sent)
	}
	if h.transportCount() != 1 {
		t.Fatalf("transports = %d, signal must reuse the pre-created session", h.transportCount())
	}
}

func TestManager_DuplicateCreateIsNoOp(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleRoster([]string{"b"})
	first := h.manager.Session("b")

	h.manager.HandleRoster([]string{"b"})
	h.manager.HandleUserJoined("b")

	if h.manager.SessionCount() != 1 || h.manager.Session("b") != first {
		t.Fatalf("duplicate creation replaced the session")
	}
	if h.transportCount() != 1 {
		t.Fatalf("transports = %d, want 1", h.transportCount())
	}
}

func TestManager_SignalFromUnknownRemoteCreatesCallee(t *testing.T) {
	h := newManagerHarness(t)
	cand := protocol.CandidateFromPion(candidate(1))
	h.manager.HandleSignal("b", protocol.SignalPayload{Candidate: &cand})

	peer := h.manager.Session("b")
	if peer == nil || peer.Role() != RoleCallee {
		t.Fatalf("want a reactively created callee session")
	}
}

func TestManager_UserLeftTombstonesRemote(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleRoster([]string{"b"})
	h.manager.HandleUserLeft("b")

	if h.manager.SessionCount() != 0 {
		t.Fatalf("session survived departure")
	}
	if !h.transports[0].closed {
		t.Fatalf("transport not closed on departure")
	}

	// A straggling in-flight signal must not resurrect the session.
	cand := protocol.CandidateFromPion(candidate(1))
	h.manager.HandleSignal("b", protocol.SignalPayload{Candidate: &cand})
	if h.manager.Session("b") != nil {
		t.Fatalf("signal resurrected a departed remote")
	}

	// A fresh membership event clears the tombstone: b genuinely rejoined.
	h.manager.HandleUserJoined("b")
	if h.manager.Session("b") == nil {
		t.Fatalf("rejoin after departure did not create a session")
	}
}

func TestManager_ScreenShareSwapsEverySession(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleRoster([]string{"b", "c"})

	if err := h.manager.StartScreenShare(); err != nil {
		t.Fatalf("start screen share: %v", err)
	}
	// Idempotent while active.
	if err := h.manager.StartScreenShare(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if h.media.screenReqs != 1 {
		t.Fatalf("screen track acquired %d times, want 1", h.media.screenReqs)
	}

	for _, ft := range h.transports {
		if got := videoTrackID(t, ft); got != "screen" {
			t.Fatalf("outbound video = %q, want screen", got)
		}
		if ft.offers != 1 {
			t.Fatalf("offers = %d, swap must not renegotiate", ft.offers)
		}
	}

	// A session created while sharing gets the screen track from the start.
	h.manager.HandleUserJoined("d")
	if got := videoTrackID(t, h.transports[len(h.transports)-1]); got != "screen" {
		t.Fatalf("mid-share session outbound video = %q, want screen", got)
	}

	h.manager.StopScreenShare()
	for _, ft := range h.transports {
		if got := videoTrackID(t, ft); got != "camera" {
			t.Fatalf("outbound video = %q, want camera after stop", got)
		}
	}
}

func videoTrackID(t *testing.T, ft *fakeTransport) string {
	t.Helper()
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, s := range ft.senders {
		if s.Track().Kind() == webrtc.RTPCodecTypeVideo {
			return s.Track().ID()
		}
	}
	t.Fatalf("no video sender")
	return ""
}

func TestManager_MediaFailureIsFatal(t *testing.T) {
	media := &fakeMedia{tracksErr: errors.New("no camera")}
	m := NewManager(Config{
		Transport: func() (Transport, error) { return &fakeTransport{}, nil },
		Media:     media,
		Send:      func(string, protocol.SignalPayload) error { return nil },
		Logger:    discardLogger(),
	})
	if err := m.Start(); err == nil {
		t.Fatalf("want media acquisition error")
	}
	// No sessions can be initiated without media.
	m.HandleRoster([]string{"b"})
	if m.SessionCount() != 0 {
		t.Fatalf("session created without local media")
	}
}

func TestManager_CloseTearsDownAllSessions(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.HandleRoster([]string{"b", "c"})

	h.manager.Close()
	if h.manager.SessionCount() != 0 {
		t.Fatalf("sessions survive close")
	}
	for _, ft := range h.transports {
		if !ft.closed {
			t.Fatalf("transport left open")
		}
	}

	// Post-close events are ignored.
	h.manager.HandleRoster([]string{"d"})
	if h.manager.SessionCount() != 0 || h.transportCount() != 2 {
		t.Fatalf("event processed after close")
	}
}
