// Package webrtcpeer adapts pion/webrtc peer connections to the transport
// surface the session package negotiates over.
package webrtcpeer

import (
	"fmt"
	"net"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/config"
)

// NewAPI builds a webrtc API with the configured network settings and the
// default audio/video codecs registered.
func NewAPI(cfg config.Config) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if err := ApplyNetworkSettings(&se, cfg); err != nil {
		return nil, err
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, cfg config.Config) error {
	if cfg.WebRTCUDPPortRange != nil {
		if err := se.SetEphemeralUDPPortRange(cfg.WebRTCUDPPortRange.Min, cfg.WebRTCUDPPortRange.Max); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	// SettingEngine has no "bind to this IP" toggle; candidate gathering and
	// socket binding are restricted via IPFilter instead.
	if cfg.WebRTCUDPListenIP != nil {
		listenIP := cfg.WebRTCUDPListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}

	return nil
}
