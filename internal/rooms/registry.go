// Package rooms tracks which participants belong to which room.
//
// The registry is pure in-memory bookkeeping: it never notifies anyone.
// Fan-out of join/leave events is the relay server's job.
package rooms

import "sync"

// Registry maps room names to ordered sets of participant ids.
//
// Membership order is insertion order, which gives new joiners a deterministic
// roster snapshot. A participant is expected to be in at most one room, but
// Leave scans all rooms so a bookkeeping bug can never strand a membership.
type Registry struct {
	mu sync.Mutex
	// rooms preserves insertion order per room; order is what makes roster
	// snapshots deterministic.
	rooms map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string][]string),
	}
}

// Join adds participant to room, creating the room if needed, and returns the
// members that were already present (the joiner's roster snapshot).
// Joining a room the participant is already in is a no-op; the snapshot is
// still returned so the caller can re-send the roster.
func (r *Registry) Join(room, participant string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	others := make([]string, 0, len(members))
	present := false
	for _, id := range members {
		if id == participant {
			present = true
			continue
		}
		others = append(others, id)
	}
	if !present {
		r.rooms[room] = append(members, participant)
	}
	return others
}

// Leave removes participant from every room containing it and returns the
// rooms it was removed from. Rooms whose member set becomes empty are deleted.
func (r *Registry) Leave(participant string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room, members := range r.rooms {
		kept := members[:0]
		removed := false
		for _, id := range members {
			if id == participant {
				removed = true
				continue
			}
			kept = append(kept, id)
		}
		if !removed {
			continue
		}
		left = append(left, room)
		if len(kept) == 0 {
			delete(r.rooms, room)
		} else {
			r.rooms[room] = kept
		}
	}
	return left
}

// Members returns a snapshot of the room's membership in insertion order.
// An absent room yields an empty slice.
func (r *Registry) Members(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// Count returns the number of rooms with at least one member.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
