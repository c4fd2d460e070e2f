// Package config loads the relay's runtime configuration from environment
// variables and command-line flags. Flags take precedence over env vars.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "VIDEO_CALL_RELAY_LISTEN_ADDR"
	envVarLogFormat       = "VIDEO_CALL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "VIDEO_CALL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "VIDEO_CALL_RELAY_SHUTDOWN_TIMEOUT"

	// Signaling connection hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarWSIdleTimeout                 = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval                = "WS_PING_INTERVAL"
	envVarSendQueueSize                 = "SEND_QUEUE_SIZE"

	// Peer-side knobs, consumed by the headless client.
	envVarICEServers        = "ICE_SERVERS"
	envVarVideoMaxBitrate   = "VIDEO_MAX_BITRATE_BPS"
	envVarVideoMaxFramerate = "VIDEO_MAX_FRAMERATE"
	envVarWebRTCUDPPortMin  = "WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax  = "WEBRTC_UDP_PORT_MAX"
	envVarWebRTCUDPListenIP = "WEBRTC_UDP_LISTEN_IP"
)

const (
	DefaultListenAddr      = "127.0.0.1:5000"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultWSIdleTimeout                 = 60 * time.Second
	DefaultWSPingInterval                = 20 * time.Second
	// DefaultSendQueueSize bounds the per-connection outbound message queue.
	// A participant that cannot drain its queue is disconnected rather than
	// allowed to stall broadcasts for the whole room.
	DefaultSendQueueSize = 64

	// Per-peer outbound video caps. Total egress in a mesh scales linearly
	// with peer count, so each sender is bounded.
	DefaultVideoMaxBitrateBps uint64  = 800_000
	DefaultVideoMaxFramerate  float64 = 24
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type PortRange struct {
	Min uint16
	Max uint16
}

type Config struct {
	ListenAddr      string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	WSIdleTimeout                 time.Duration
	WSPingInterval                time.Duration
	SendQueueSize                 int

	ICEServers         []webrtc.ICEServer
	WebRTCUDPPortRange *PortRange
	// WebRTCUDPListenIP restricts ICE candidate gathering and socket binding
	// to a single local IP. Nil means all interfaces.
	WebRTCUDPListenIP net.IP

	VideoMaxBitrateBps uint64
	VideoMaxFramerate  float64
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	logFormatStr := envOrDefault(lookup, envVarLogFormat, string(LogFormatText))
	logLevelStr := envOrDefault(lookup, envVarLogLevel, "info")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	maxMsgBytes, err := envInt64OrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMsgsPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	sendQueueSize, err := envIntOrDefault(lookup, envVarSendQueueSize, DefaultSendQueueSize)
	if err != nil {
		return Config{}, err
	}

	iceServersStr := envOrDefault(lookup, envVarICEServers, "")
	videoMaxBitrate, err := envInt64OrDefault(lookup, envVarVideoMaxBitrate, int64(DefaultVideoMaxBitrateBps))
	if err != nil {
		return Config{}, err
	}
	videoMaxFramerate := DefaultVideoMaxFramerate
	if raw, ok := lookup(envVarVideoMaxFramerate); ok && strings.TrimSpace(raw) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarVideoMaxFramerate, raw, err)
		}
		videoMaxFramerate = f
	}
	udpPortMin, err := envIntOrDefault(lookup, envVarWebRTCUDPPortMin, 0)
	if err != nil {
		return Config{}, err
	}
	udpPortMax, err := envIntOrDefault(lookup, envVarWebRTCUDPPortMax, 0)
	if err != nil {
		return Config{}, err
	}
	udpListenIPStr := envOrDefault(lookup, envVarWebRTCUDPListenIP, "")

	fs := flag.NewFlagSet("video-call-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.Int64Var(&maxMsgBytes, "max-signaling-message-bytes", maxMsgBytes, "Max size of one signaling message (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxMsgsPerSecond, "max-signaling-messages-per-second", maxMsgsPerSecond, "Per-connection signaling message rate limit (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close connections with no traffic or pongs for this long (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "WebSocket keepalive ping interval (env "+envVarWSPingInterval+")")
	fs.IntVar(&sendQueueSize, "send-queue-size", sendQueueSize, "Per-connection outbound message queue length (env "+envVarSendQueueSize+")")
	fs.StringVar(&iceServersStr, "ice-servers", iceServersStr, "Comma-separated ICE server URLs, optional |user|pass suffix for TURN (env "+envVarICEServers+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	iceServers, err := ParseICEServers(iceServersStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarICEServers, err)
	}

	var portRange *PortRange
	if udpPortMin != 0 || udpPortMax != 0 {
		if udpPortMin <= 0 || udpPortMax <= 0 || udpPortMin > udpPortMax || udpPortMax > 65535 {
			return Config{}, fmt.Errorf("invalid %s/%s: %d..%d", envVarWebRTCUDPPortMin, envVarWebRTCUDPPortMax, udpPortMin, udpPortMax)
		}
		portRange = &PortRange{Min: uint16(udpPortMin), Max: uint16(udpPortMax)}
	}

	var udpListenIP net.IP
	if udpListenIPStr != "" {
		udpListenIP = net.ParseIP(udpListenIPStr)
		if udpListenIP == nil {
			return Config{}, fmt.Errorf("invalid %s %q", envVarWebRTCUDPListenIP, udpListenIPStr)
		}
		if udpListenIP.IsUnspecified() {
			// 0.0.0.0/:: means no restriction; treat like unset.
			udpListenIP = nil
		}
	}

	if maxMsgBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessageBytes)
	}
	if maxMsgsPerSecond <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	if sendQueueSize <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarSendQueueSize)
	}
	if videoMaxBitrate <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarVideoMaxBitrate)
	}
	if videoMaxFramerate <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarVideoMaxFramerate)
	}

	return Config{
		ListenAddr:      listenAddr,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,

		MaxSignalingMessageBytes:      maxMsgBytes,
		MaxSignalingMessagesPerSecond: maxMsgsPerSecond,
		WSIdleTimeout:                 wsIdleTimeout,
		WSPingInterval:                wsPingInterval,
		SendQueueSize:                 sendQueueSize,

		ICEServers:         iceServers,
		WebRTCUDPPortRange: portRange,
		WebRTCUDPListenIP:  udpListenIP,

		VideoMaxBitrateBps: uint64(videoMaxBitrate),
		VideoMaxFramerate:  videoMaxFramerate,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
