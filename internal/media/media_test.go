package media

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func newTestSource(t *testing.T) *Source {
	t.Helper()
	s, err := NewSource(Config{VideoMaxBitrateBps: 800_000, VideoMaxFramerate: 24})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSource_TracksAreOpusAudioThenVP8Video(t *testing.T) {
	s := newTestSource(t)

	tracks, err := s.Tracks()
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	if tracks[0].Kind() != webrtc.RTPCodecTypeAudio {
		t.Fatalf("tracks[0] kind = %s, want audio", tracks[0].Kind())
	}
	if tracks[1].Kind() != webrtc.RTPCodecTypeVideo {
		t.Fatalf("tracks[1] kind = %s, want video", tracks[1].Kind())
	}
	if tracks[1].ID() != "camera" {
		t.Fatalf("video track id = %q", tracks[1].ID())
	}
}

func TestSource_ScreenTrackCreatedOnce(t *testing.T) {
	s := newTestSource(t)

	first, err := s.ScreenTrack()
	if err != nil {
		t.Fatalf("screen track: %v", err)
	}
	if first.Kind() != webrtc.RTPCodecTypeVideo || first.ID() != "screen" {
		t.Fatalf("screen track = %s/%s", first.Kind(), first.ID())
	}
	second, err := s.ScreenTrack()
	if err != nil {
		t.Fatalf("second screen track: %v", err)
	}
	if first != second {
		t.Fatalf("screen track recreated")
	}
}

func TestSource_RejectsInvalidCaps(t *testing.T) {
	if _, err := NewSource(Config{VideoMaxBitrateBps: 0, VideoMaxFramerate: 24}); err == nil {
		t.Fatalf("want error for zero bitrate")
	}
	if _, err := NewSource(Config{VideoMaxBitrateBps: 800_000, VideoMaxFramerate: 0}); err == nil {
		t.Fatalf("want error for zero framerate")
	}
}

func TestSource_AudioVideoToggles(t *testing.T) {
	s := newTestSource(t)

	if !s.AudioEnabled() || !s.VideoEnabled() {
		t.Fatalf("tracks must start enabled: audio=%v video=%v", s.AudioEnabled(), s.VideoEnabled())
	}

	s.SetAudioEnabled(false)
	if s.AudioEnabled() {
		t.Fatalf("audio still enabled after mute")
	}
	if !s.VideoEnabled() {
		t.Fatalf("muting audio must not touch video")
	}

	s.SetVideoEnabled(false)
	if s.VideoEnabled() {
		t.Fatalf("video still enabled after mute")
	}

	// The generators keep running while muted; unmuting resumes sending
	// without renegotiation and close still drains cleanly.
	time.Sleep(3 * audioFrameInterval)
	s.SetAudioEnabled(true)
	s.SetVideoEnabled(true)
	if !s.AudioEnabled() || !s.VideoEnabled() {
		t.Fatalf("unmute did not stick")
	}
}

func TestSource_CloseIsIdempotentAndBlocksScreenTrack(t *testing.T) {
	s := newTestSource(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := s.ScreenTrack(); err == nil {
		t.Fatalf("screen track after close must fail")
	}
}

func TestFrameSizing(t *testing.T) {
	if got := frameSizeBytes(800_000, 24); got != 4166 {
		t.Fatalf("frameSizeBytes(800k, 24) = %d", got)
	}
	// A full second of frames stays at or under the cap.
	if total := 24 * frameSizeBytes(800_000, 24) * 8; total > 800_000 {
		t.Fatalf("one second of frames = %d bits, exceeds cap", total)
	}
	if got := frameSizeBytes(1, 1000); got != 1 {
		t.Fatalf("tiny budget must still produce a frame, got %d", got)
	}
	if got := frameInterval(24); got != time.Second/24 {
		t.Fatalf("frameInterval(24) = %v", got)
	}
}
