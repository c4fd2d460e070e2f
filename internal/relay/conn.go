package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/owes2005/video-call-project/internal/protocol"
)

const wsWriteWait = 1 * time.Second

// conn is one participant's websocket connection. The read loop runs in the
// HTTP handler goroutine; writes are funneled through a buffered channel
// drained by writeLoop, since gorilla allows only one concurrent writer.
type conn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	send chan protocol.Message
	done chan struct{}
	once sync.Once

	// room is the room this participant has joined, empty until join-room.
	// Only the connection's own read loop touches it.
	room string
}

func newConn(id string, ws *websocket.Conn, queueSize int, log *slog.Logger) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		log:  log,
		send: make(chan protocol.Message, queueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a message to the writer. A participant whose queue is full is
// not keeping up with its room; it gets disconnected rather than allowed to
// stall with an ever-growing backlog.
func (c *conn) enqueue(msg protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send queue overflow, dropping connection", "participant", c.id)
		c.close()
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop drains the send queue and emits keepalive pings until the
// connection is closed.
func (c *conn) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
