// Package signaling maintains authoritative room membership for live meetings
// and routes directed (call-setup) and room-scoped (broadcast) messages
// between connected peers over WebSocket.
package signaling

// MeetingID identifies a meeting; one meeting maps to at most one active room.
type MeetingID string

// UserID identifies an account; at most one live connection per (room, user).
type UserID string

// ConnectionID identifies one live transport session, assigned on connect.
type ConnectionID string

// Connection is the registry's record of one live session. Owned exclusively
// by the Registry; no other component mutates it.
type Connection struct {
	ID          ConnectionID
	UserID      UserID
	DisplayName string
	// MeetingID is empty until the connection joins a room.
	MeetingID MeetingID
}

// Participant is the wire shape of a peer identity.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"userName"`
}

// ICEServer is one relay/STUN hint handed to a freshly admitted connection.
type ICEServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}
