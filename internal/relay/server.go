package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/owes2005/video-call-project/internal/config"
	"github.com/owes2005/video-call-project/internal/metrics"
	"github.com/owes2005/video-call-project/internal/protocol"
	"github.com/owes2005/video-call-project/internal/rooms"
)

// Server owns the signaling websocket endpoint. Each connection is assigned a
// fresh participant id for its lifetime; ids are never reused.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	rooms    *rooms.Registry
	router   *Router
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		log:     logger,
		rooms:   rooms.NewRegistry(),
		router:  NewRouter(),
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router exposes the signal router, mainly for tests.
func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := uuid.NewString()
	c := newConn(id, ws, s.cfg.SendQueueSize, s.log)

	s.metrics.Connections.Inc()
	s.metrics.ConnectedPeers.Inc()
	s.router.Register(id, c)

	s.log.Info("participant connected", "participant", id, "remote_addr", r.RemoteAddr)

	// The disconnect transition must run exactly once per connection, however
	// the read loop ends. A single deferred cleanup on the read goroutine
	// guarantees that, including on abrupt network loss.
	defer func() {
		s.router.Unregister(id)
		for _, room := range s.rooms.Leave(id) {
			s.broadcast(room, protocol.Message{
				Type:        protocol.TypeUserLeft,
				Participant: id,
			}, id)
			s.metrics.Leaves.Inc()
		}
		s.metrics.OpenRooms.Set(float64(s.rooms.Count()))
		s.metrics.ConnectedPeers.Dec()
		c.close()
		s.log.Info("participant disconnected", "participant", id)
	}()

	go c.writeLoop(s.cfg.WSPingInterval)

	c.enqueue(protocol.Message{Type: protocol.TypeWelcome, Self: id})

	ws.SetReadLimit(s.cfg.MaxSignalingMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	})

	limiter := newMessageLimiter(s.cfg.MaxSignalingMessagesPerSecond)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(ws, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if !limiter.Allow(time.Now()) {
			writeClose(ws, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			writeClose(ws, websocket.CloseUnsupportedData, "invalid message")
			return
		}

		switch msg.Type {
		case protocol.TypeJoinRoom:
			s.handleJoin(c, msg.Room)
		case protocol.TypeSignal:
			s.handleSignal(c, msg)
		case protocol.TypeSendMessage:
			s.handleChat(c, msg.Text)
		default:
			c.enqueue(protocol.Message{
				Type:  protocol.TypeError,
				Error: "unsupported message type " + string(msg.Type),
			})
		}
	}
}

func (s *Server) handleJoin(c *conn, room string) {
	if room == "" {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Error: "join-room requires a room"})
		return
	}
	if c.room != "" && c.room != room {
		// Single-room model: switching rooms on one connection is rejected,
		// but the connection stays usable.
		c.enqueue(protocol.Message{Type: protocol.TypeError, Error: "already joined room " + c.room})
		return
	}

	rejoin := c.room == room
	others := s.rooms.Join(room, c.id)
	c.room = room

	c.enqueue(protocol.Message{
		Type:         protocol.TypeAllUsers,
		Participants: others,
	})

	if rejoin {
		// Idempotent re-join: roster is re-sent, members are not re-notified.
		return
	}

	for _, other := range others {
		s.router.Send(other, protocol.Message{
			Type:        protocol.TypeUserJoined,
			Participant: c.id,
		})
	}

	s.metrics.Joins.Inc()
	s.metrics.OpenRooms.Set(float64(s.rooms.Count()))
	s.log.Info("participant joined room", "participant", c.id, "room", room, "existing_members", len(others))
}

func (s *Server) handleSignal(c *conn, msg protocol.Message) {
	if msg.To == "" || len(msg.Signal) == 0 {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Error: "signal requires to and signal"})
		return
	}
	if s.router.Route(c.id, msg.To, msg.Signal) {
		s.metrics.SignalsRelayed.Inc()
	} else {
		// Target gone or backed up. Dropping is deliberate: the sender's
		// negotiation attempt simply stalls and its own timeout handling
		// applies.
		s.metrics.SignalsDropped.Inc()
		s.log.Debug("signal dropped", "from", c.id, "to", msg.To)
	}
}

func (s *Server) handleChat(c *conn, text string) {
	if c.room == "" {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Error: "send-message requires joining a room first"})
		return
	}
	if text == "" {
		return
	}

	// The whole room hears chat, sender included. Timestamps are
	// server-assigned so clients agree on ordering metadata.
	s.broadcast(c.room, protocol.Message{
		Type:   protocol.TypeReceiveMessage,
		Sender: c.id,
		Text:   text,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}, "")
	s.metrics.ChatMessages.Inc()
}

// broadcast fans a message out to every member of room except exclude.
// Delivery is fire-and-forget.
func (s *Server) broadcast(room string, msg protocol.Message, exclude string) {
	for _, member := range s.rooms.Members(room) {
		if member == exclude {
			continue
		}
		s.router.Send(member, msg)
	}
}
