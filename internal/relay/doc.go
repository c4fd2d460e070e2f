// Package relay implements the signaling relay: websocket connection
// lifecycle, room membership fan-out, and point-to-point routing of opaque
// negotiation payloads between participants.
package relay
