package signaling

import (
	"sync"
)

// room holds the live membership of one meeting. Created on first join,
// deleted when the last member leaves; membership-reaches-zero is the only
// active→absent transition (besides an explicit meeting end).
type room struct {
	id MeetingID
	// members and identity are always mutated together: a connection is in
	// members if and only if identity maps its user to it.
	members  map[ConnectionID]*Connection
	identity map[UserID]ConnectionID
}

// Registry is the single owner of connection/room/identity state. All
// mutations run to completion under one lock, so no two room events can
// interleave into a duplicate or orphaned membership entry. State lives in
// process memory only and is rebuilt implicitly as connections arrive.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnectionID]*Connection
	rooms map[MeetingID]*room
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[ConnectionID]*Connection),
		rooms: make(map[MeetingID]*room),
	}
}

// Admit adds conn to its meeting's room. If the user already holds a live
// connection in that room, the old one is removed and returned with
// reconnected=true; the caller emits participant-reconnected instead of
// participant-joined. Admitting an id that is already a member elsewhere
// first detaches it (a connection appears in at most one room).
func (r *Registry) Admit(conn Connection) (replaced *Connection, reconnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[conn.ID]; ok && prev.MeetingID != "" {
		r.detachLocked(prev)
	}

	rm := r.getOrCreateRoomLocked(conn.MeetingID)

	if oldID, ok := rm.identity[conn.UserID]; ok && oldID != conn.ID {
		old := rm.members[oldID]
		r.detachLocked(old)
		delete(r.conns, oldID)
		replaced = old
		reconnected = true
		// detachLocked may have deleted the now-empty room entry.
		rm = r.getOrCreateRoomLocked(conn.MeetingID)
	}

	c := conn
	r.conns[c.ID] = &c
	rm.members[c.ID] = &c
	rm.identity[c.UserID] = c.ID
	return replaced, reconnected
}

// Remove takes the connection out of the registry and its room. Idempotent:
// removing an unknown id reports ok=false and changes nothing. The returned
// snapshot carries the departed connection and the ids of the remaining room
// members, so the caller can notify them after the mutation completed.
func (r *Registry) Remove(id ConnectionID) (departed Connection, remaining []ConnectionID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[id]
	if !exists {
		return Connection{}, nil, false
	}

	departed = *conn
	if conn.MeetingID != "" {
		r.detachLocked(conn)
		if rm, stillThere := r.rooms[departed.MeetingID]; stillThere {
			for memberID := range rm.members {
				remaining = append(remaining, memberID)
			}
		}
	}
	delete(r.conns, id)
	return departed, remaining, true
}

// DropRoom removes a room and every binding in it (explicit meeting end).
// Returns the former members so the caller can notify them.
func (r *Registry) DropRoom(meetingID MeetingID) []ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[meetingID]
	if !ok {
		return nil
	}
	members := make([]ConnectionID, 0, len(rm.members))
	for id, conn := range rm.members {
		members = append(members, id)
		conn.MeetingID = ""
	}
	delete(r.rooms, meetingID)
	return members
}

// Lookup returns a copy of the connection record.
func (r *Registry) Lookup(id ConnectionID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// Members returns the connection ids in the room, excluding exclude (pass ""
// to exclude nothing). A missing room yields nil.
func (r *Registry) Members(meetingID MeetingID, exclude ConnectionID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[meetingID]
	if !ok {
		return nil
	}
	out := make([]ConnectionID, 0, len(rm.members))
	for id := range rm.members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// Peers returns the identities of the room members excluding exclude.
func (r *Registry) Peers(meetingID MeetingID, exclude ConnectionID) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[meetingID]
	if !ok {
		return nil
	}
	out := make([]Participant, 0, len(rm.members))
	for id, conn := range rm.members {
		if id == exclude {
			continue
		}
		out = append(out, Participant{
			ConnectionID: id,
			UserID:       conn.UserID,
			DisplayName:  conn.DisplayName,
		})
	}
	return out
}

// RoomExists reports whether the meeting currently has an active room.
func (r *Registry) RoomExists(meetingID MeetingID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[meetingID]
	return ok
}

// ConnectionCount returns the number of admitted connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// detachLocked removes conn from its room's membership and identity binding,
// deleting the room entry when it empties. Caller must hold r.mu in write
// mode; conn must currently be a member of its MeetingID room.
func (r *Registry) detachLocked(conn *Connection) {
	rm, ok := r.rooms[conn.MeetingID]
	if !ok {
		return
	}
	delete(rm.members, conn.ID)
	if rm.identity[conn.UserID] == conn.ID {
		delete(rm.identity, conn.UserID)
	}
	if len(rm.members) == 0 {
		delete(r.rooms, conn.MeetingID)
	}
	conn.MeetingID = ""
}

// getOrCreateRoomLocked returns an existing room or creates a new one.
// Caller must hold r.mu in write mode.
func (r *Registry) getOrCreateRoomLocked(meetingID MeetingID) *room {
	if rm, ok := r.rooms[meetingID]; ok {
		return rm
	}
	rm := &room{
		id:       meetingID,
		members:  make(map[ConnectionID]*Connection),
		identity: make(map[UserID]ConnectionID),
	}
	r.rooms[meetingID] = rm
	return rm
}
