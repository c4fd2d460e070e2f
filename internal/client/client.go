// Package client implements the relay-side half of a participant: the
// websocket connection to the signaling relay and the dispatch loop feeding
// the session manager.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/owes2005/video-call-project/internal/protocol"
	"github.com/owes2005/video-call-project/internal/session"
)

// Events receives the relay's messages. Nil callbacks are skipped.
type Events struct {
	OnRoster     func(ids []string)
	OnUserJoined func(id string)
	OnUserLeft   func(id string)
	OnSignal     func(from string, payload protocol.SignalPayload)
	OnChat       func(sender, text, timestamp string)
	OnError      func(message string)
}

// SessionEvents adapts a session manager to the relay event surface. Chat and
// error callbacks are left unset for the caller to fill in.
func SessionEvents(m *session.Manager) Events {
	return Events{
		OnRoster:     m.HandleRoster,
		OnUserJoined: m.HandleUserJoined,
		OnUserLeft:   m.HandleUserLeft,
		OnSignal:     m.HandleSignal,
	}
}

// Client is one participant's connection to the relay.
//
// Writes are serialized on writeMu; the read side belongs exclusively to Run.
type Client struct {
	ws   *websocket.Conn
	log  *slog.Logger
	self string

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the relay's websocket endpoint and consumes the welcome
// message carrying this participant's relay-assigned id.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	welcomeBy := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(welcomeBy) {
		welcomeBy = d
	}
	_ = ws.SetReadDeadline(welcomeBy)
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("client: read welcome: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	msg, err := protocol.Decode(data)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	if msg.Type != protocol.TypeWelcome || msg.Self == "" {
		_ = ws.Close()
		return nil, fmt.Errorf("client: expected welcome, got %q", msg.Type)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Client{
		ws:   ws,
		log:  log.With("self", msg.Self),
		self: msg.Self,
	}, nil
}

// Self returns the relay-assigned participant id.
func (c *Client) Self() string { return c.self }

// Join asks the relay to place this participant in a room. The roster arrives
// asynchronously through Events.OnRoster.
func (c *Client) Join(room string) error {
	return c.write(protocol.Message{Type: protocol.TypeJoinRoom, Room: room})
}

// SendSignal relays a negotiation payload to one participant. This is the
// session manager's SendFunc.
func (c *Client) SendSignal(to string, payload protocol.SignalPayload) error {
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	return c.write(protocol.Message{Type: protocol.TypeSignal, To: to, Signal: raw})
}

// SendChat broadcasts a chat message to the joined room.
func (c *Client) SendChat(text string) error {
	return c.write(protocol.Message{Type: protocol.TypeSendMessage, Text: text})
}

func (c *Client) write(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("client: write %s: %w", msg.Type, err)
	}
	return nil
}

// Run reads and dispatches relay messages until the connection drops or ctx
// is canceled. Cancellation closes the connection to unblock the read.
func (c *Client) Run(ctx context.Context, ev Events) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: read: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("undecodable relay message", "err", err)
			continue
		}
		c.dispatch(msg, ev)
	}
}

func (c *Client) dispatch(msg protocol.Message, ev Events) {
	switch msg.Type {
	case protocol.TypeAllUsers:
		if ev.OnRoster != nil {
			ev.OnRoster(msg.Participants)
		}
	case protocol.TypeUserJoined:
		if ev.OnUserJoined != nil {
			ev.OnUserJoined(msg.Participant)
		}
	case protocol.TypeUserLeft:
		if ev.OnUserLeft != nil {
			ev.OnUserLeft(msg.Participant)
		}
	case protocol.TypeSignal:
		payload, err := protocol.DecodeSignalPayload(msg.Signal)
		if err != nil {
			c.log.Warn("undecodable signal", "from", msg.From, "err", err)
			return
		}
		if ev.OnSignal != nil {
			ev.OnSignal(msg.From, payload)
		}
	case protocol.TypeReceiveMessage:
		if ev.OnChat != nil {
			ev.OnChat(msg.Sender, msg.Text, msg.Time)
		}
	case protocol.TypeError:
		c.log.Warn("relay error", "error", msg.Error)
		if ev.OnError != nil {
			ev.OnError(msg.Error)
		}
	default:
		c.log.Debug("ignoring relay message", "type", msg.Type)
	}
}

// Close shuts the websocket down. Safe to call concurrently with Run.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
