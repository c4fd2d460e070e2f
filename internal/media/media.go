// Package media provides the local audio/video tracks fed into peer
// sessions.
//
// The tracks are synthetic: paced sample generators standing in for a camera
// capture and encoder pipeline, sized so the outbound video stays under the
// configured bitrate and framerate caps. That is what a headless participant
// needs; a real capture source would slot in behind the same Source surface.
package media

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	audioFrameBytes    = 160
)

type Config struct {
	VideoMaxBitrateBps uint64
	VideoMaxFramerate  float64
	Logger             *slog.Logger
}

// Source owns the local tracks the session manager attaches to every peer
// connection: one Opus audio track, one VP8 camera track, and a lazily
// created VP8 screen track.
type Source struct {
	log   *slog.Logger
	cfg   Config
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	screen *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewSource(cfg Config) (*Source, error) {
	if cfg.VideoMaxBitrateBps == 0 || cfg.VideoMaxFramerate <= 0 {
		return nil, fmt.Errorf("media: invalid video caps: %d bps, %g fps", cfg.VideoMaxBitrateBps, cfg.VideoMaxFramerate)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "local-media",
	)
	if err != nil {
		return nil, fmt.Errorf("media: audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"camera", "local-media",
	)
	if err != nil {
		return nil, fmt.Errorf("media: video track: %w", err)
	}

	s := &Source{
		log:   log,
		cfg:   cfg,
		audio: audio,
		video: video,
		done:  make(chan struct{}),
	}
	s.audioOn.Store(true)
	s.videoOn.Store(true)

	s.wg.Add(2)
	go s.pumpAudio()
	go s.pumpVideo(video, &s.videoOn)

	return s, nil
}

// Tracks returns the audio and camera tracks, audio first.
func (s *Source) Tracks() ([]webrtc.TrackLocal, error) {
	return []webrtc.TrackLocal{s.audio, s.video}, nil
}

// ScreenTrack returns the screen capture track, creating it and starting its
// generator on first use. The track persists across share stop/start; the
// session layer just stops sending it.
func (s *Source) ScreenTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.screen != nil {
		return s.screen, nil
	}
	select {
	case <-s.done:
		return nil, fmt.Errorf("media: source closed")
	default:
	}

	screen, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"screen", "local-media",
	)
	if err != nil {
		return nil, fmt.Errorf("media: screen track: %w", err)
	}
	s.screen = screen
	s.wg.Add(1)
	// Screen capture has no mute toggle; stopping the share swaps the
	// camera track back in instead.
	go s.pumpVideo(screen, nil)
	return screen, nil
}

// SetAudioEnabled mutes or unmutes the outbound audio track. While muted the
// generator keeps running but writes no samples, so the track stays
// negotiated and unmuting is instant.
func (s *Source) SetAudioEnabled(on bool) {
	s.audioOn.Store(on)
}

func (s *Source) AudioEnabled() bool {
	return s.audioOn.Load()
}

// SetVideoEnabled mutes or unmutes the outbound camera track. The screen
// track is unaffected.
func (s *Source) SetVideoEnabled(on bool) {
	s.videoOn.Store(on)
}

func (s *Source) VideoEnabled() bool {
	return s.videoOn.Load()
}

// Close stops the generators and waits for them to exit.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *Source) pumpAudio() {
	defer s.wg.Done()

	ticker := time.NewTicker(audioFrameInterval)
	defer ticker.Stop()

	frame := make([]byte, audioFrameBytes)
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.audioOn.Load() {
				continue
			}
			if err := s.audio.WriteSample(media.Sample{Data: frame, Duration: audioFrameInterval}); err != nil {
				s.log.Warn("audio sample dropped", "err", err)
			}
		}
	}
}

func (s *Source) pumpVideo(track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) {
	defer s.wg.Done()

	interval := frameInterval(s.cfg.VideoMaxFramerate)
	size := frameSizeBytes(s.cfg.VideoMaxBitrateBps, s.cfg.VideoMaxFramerate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, size)
	var n byte
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if enabled != nil && !enabled.Load() {
				continue
			}
			// Vary the payload so downstream consumers can tell frames apart.
			for i := range frame {
				frame[i] = n
			}
			n++
			if err := track.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
				s.log.Warn("video sample dropped", "track", track.ID(), "err", err)
			}
		}
	}
}

func frameInterval(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / fps)
}

// frameSizeBytes sizes each frame so a full second of frames lands exactly on
// the bitrate cap.
func frameSizeBytes(bitrateBps uint64, fps float64) int {
	size := int(float64(bitrateBps) / 8 / fps)
	if size < 1 {
		size = 1
	}
	return size
}
