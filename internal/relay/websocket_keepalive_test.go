package relay

import (
	"testing"
	"time"

	"github.com/owes2005/video-call-project/internal/protocol"
)

// A client that swallows pings without ponging lets the relay's read deadline
// expire, and the relay drops it and tells the room.
func TestServer_ClientWithoutPongIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.WSIdleTimeout = 500 * time.Millisecond
	cfg.WSPingInterval = 50 * time.Millisecond
	wsURL := startRelayWith(t, cfg)

	wsA, _ := dial(t, wsURL)
	join(t, wsA, "r1")
	fromA := drainMessages(wsA)

	wsB, idB := dial(t, wsURL)
	join(t, wsB, "r1")

	pingSeen := make(chan struct{}, 1)
	wsB.SetPingHandler(func(string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		// Intentionally no pong.
		return nil
	})
	_ = wsB.SetReadDeadline(time.Time{})
	errCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := wsB.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-pingSeen:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay sent no ping within 2s")
	}

	select {
	case <-errCh:
		// The relay gave up on the silent client.
	case <-time.After(3 * time.Second):
		t.Fatalf("connection survived despite missing pongs")
	}

	left := awaitMessage(t, fromA, 2*time.Second, func(m protocol.Message) bool {
		return m.Type == protocol.TypeUserLeft
	})
	if left.Participant != idB {
		t.Fatalf("user-left participant = %s, want %s", left.Participant, idB)
	}
}

// A client that pongs, which gorilla readers do automatically, outlives many
// idle timeouts without sending any application messages.
func TestServer_PongingClientStaysConnected(t *testing.T) {
	cfg := testConfig()
	cfg.WSIdleTimeout = 300 * time.Millisecond
	cfg.WSPingInterval = 50 * time.Millisecond
	wsURL := startRelayWith(t, cfg)

	ws, id := dial(t, wsURL)
	join(t, ws, "r1")
	from := drainMessages(ws)

	time.Sleep(3 * cfg.WSIdleTimeout)

	// Still alive: a chat round-trips through the relay.
	send(t, ws, protocol.Message{Type: protocol.TypeSendMessage, Text: "still here"})
	msg := awaitMessage(t, from, 2*time.Second, func(m protocol.Message) bool {
		return m.Type == protocol.TypeReceiveMessage
	})
	if msg.Text != "still here" || msg.Sender != id {
		t.Fatalf("chat echo = %#v", msg)
	}
}
