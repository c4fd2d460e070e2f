package config

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// DefaultSTUNURL is used when no ICE servers are configured.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// ParseICEServers parses a comma-separated server list. Each entry is a URL,
// optionally suffixed with |username|credential for TURN:
//
//	stun:stun.l.google.com:19302,turn:turn.example.com:3478|user|pass
//
// An empty input yields the default public STUN server.
func ParseICEServers(raw string) ([]webrtc.ICEServer, error) {
	entries := splitCommaSeparated(raw)
	if len(entries) == 0 {
		return []webrtc.ICEServer{{URLs: []string{DefaultSTUNURL}}}, nil
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		parts := strings.Split(entry, "|")
		server := webrtc.ICEServer{URLs: []string{strings.TrimSpace(parts[0])}}
		switch len(parts) {
		case 1:
		case 3:
			server.Username = strings.TrimSpace(parts[1])
			server.Credential = parts[2]
		default:
			return nil, fmt.Errorf("entry %d: expected url or url|username|credential, got %q", i, entry)
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func validateICEServer(server webrtc.ICEServer) error {
	for _, url := range server.URLs {
		scheme, _, found := strings.Cut(url, ":")
		if !found {
			return fmt.Errorf("malformed ice url %q", url)
		}
		switch strings.ToLower(scheme) {
		case "stun", "stuns":
			if server.Username != "" || server.Credential != nil {
				return fmt.Errorf("stun url %q must not carry credentials", url)
			}
		case "turn", "turns":
			if server.Username == "" || server.Credential == nil || server.Credential == "" {
				return fmt.Errorf("turn url %q requires username and credential", url)
			}
		default:
			return fmt.Errorf("unsupported ice scheme %q", scheme)
		}
	}
	return nil
}

func splitCommaSeparated(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
