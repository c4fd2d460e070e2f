// Package protocol defines the wire messages exchanged over the signaling
// websocket.
//
// The server only ever looks at the envelope fields; the Signal field is an
// opaque blob it relays without decoding. The typed payload representation
// (SignalPayload) exists for clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type Type string

const (
	// TypeWelcome carries the participant id the relay assigned to this
	// connection. It is the first message on every connection.
	TypeWelcome Type = "welcome"

	TypeJoinRoom   Type = "join-room"
	TypeAllUsers   Type = "all-users"
	TypeUserJoined Type = "user-joined"
	TypeSignal     Type = "signal"
	TypeUserLeft   Type = "user-left"

	TypeSendMessage    Type = "send-message"
	TypeReceiveMessage Type = "receive-message"

	TypeError Type = "error"
)

// Message is the single envelope shape used in both directions. Which fields
// are populated depends on Type.
type Message struct {
	Type Type `json:"type"`

	// Self is the relay-assigned participant id (welcome).
	Self string `json:"self,omitempty"`

	// Room names the target room (join-room, send-message).
	Room string `json:"room,omitempty"`

	// Participants is the roster snapshot, excluding the receiver (all-users).
	Participants []string `json:"participants,omitempty"`

	// Participant identifies the subject of a membership event
	// (user-joined, user-left).
	Participant string `json:"participant,omitempty"`

	// To/From address a signal relay. From is always set by the relay from the
	// sending connection's identity; a client-supplied From is discarded.
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	// Signal is the negotiation payload. Opaque to the relay.
	Signal json.RawMessage `json:"signal,omitempty"`

	// Chat fields (send-message, receive-message). Time is assigned by the
	// server, RFC 3339.
	Text   string `json:"text,omitempty"`
	Sender string `json:"sender,omitempty"`
	Time   string `json:"time,omitempty"`

	// Error is a human-readable description (error).
	Error string `json:"error,omitempty"`
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("protocol: message without type")
	}
	return m, nil
}

// SessionDescription is a JSON-friendly offer/answer representation matching
// what browsers put on the wire.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (d SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("protocol: unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// SignalPayload is the client-side view of a signal's contents: exactly one of
// SDP or Candidate is set.
type SignalPayload struct {
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty"`
}

func (p SignalPayload) Encode() (json.RawMessage, error) {
	if (p.SDP == nil) == (p.Candidate == nil) {
		return nil, fmt.Errorf("protocol: signal payload must carry exactly one of sdp or candidate")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode signal payload: %w", err)
	}
	return b, nil
}

func DecodeSignalPayload(raw json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return SignalPayload{}, fmt.Errorf("protocol: decode signal payload: %w", err)
	}
	if p.SDP == nil && p.Candidate == nil {
		return SignalPayload{}, fmt.Errorf("protocol: signal payload carries neither sdp nor candidate")
	}
	return p, nil
}
