package relay

import (
	"encoding/json"
	"sync"

	"github.com/owes2005/video-call-project/internal/protocol"
)

// sink receives messages addressed to one participant. enqueue reports whether
// the message was accepted; a full or closed sink returns false.
type sink interface {
	enqueue(protocol.Message) bool
}

// Router delivers signaling payloads to the connection currently registered
// under a participant id. It is room-agnostic: addressing is purely by id.
type Router struct {
	mu    sync.RWMutex
	conns map[string]sink
}

func NewRouter() *Router {
	return &Router{
		conns: make(map[string]sink),
	}
}

func (r *Router) Register(id string, s sink) {
	r.mu.Lock()
	r.conns[id] = s
	r.mu.Unlock()
}

func (r *Router) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Route delivers signal to the participant identified by to. The from field of
// the delivered message is always the caller-supplied authenticated identity;
// whatever the sending client put on the wire never reaches the target.
//
// If the target is not connected the payload is dropped: negotiation is
// point-in-time, and a stale payload is useless to a future connection.
// Reports whether the payload was delivered.
func (r *Router) Route(from, to string, signal json.RawMessage) bool {
	r.mu.RLock()
	target, ok := r.conns[to]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return target.enqueue(protocol.Message{
		Type:   protocol.TypeSignal,
		From:   from,
		Signal: signal,
	})
}

// Send delivers an arbitrary server-originated message to one participant.
// Reports whether the participant was connected and accepted it.
func (r *Router) Send(id string, msg protocol.Message) bool {
	r.mu.RLock()
	target, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return target.enqueue(msg)
}
