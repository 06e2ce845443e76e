package signaling

import (
	"encoding/json"
	"time"

	"meet-coordinator/internal/store"
)

// Events the server emits to peers.
const (
	EventParticipantJoined      = "participant-joined"
	EventParticipantReconnected = "participant-reconnected"
	EventParticipantLeft        = "participant-left"
	EventICEServers             = "ice-servers"
	EventExistingParticipants   = "existing-participants"
	EventChatHistory            = "chat-history"
	EventChatMessage            = "chat-message"
	EventCaptionsStarted        = "captions-started"
	EventCaptionUpdate          = "caption-update"
	EventCaptionError           = "caption-error"
	EventMeetingEnded           = "meeting-ended"
	EventScreenShareStarted     = "user-started-screen-share"
	EventScreenShareStopped     = "user-stopped-screen-share"
)

// Events clients send; the webrtc-* names double as the server-emitted relay
// events so peers see the same name they sent.
const (
	EventJoinMeeting      = "join-meeting"
	EventLeaveMeeting     = "leave-meeting"
	EventWebRTCOffer      = "webrtc-offer"
	EventWebRTCAnswer     = "webrtc-answer"
	EventWebRTCCandidate  = "webrtc-ice-candidate"
	EventAudioData        = "audio-data"
	EventStartCaptions    = "start-captions"
	EventEndMeeting       = "end-meeting"
	EventStartScreenShare = "start-screen-share"
	EventStopScreenShare  = "stop-screen-share"
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinRequest is the client payload for join-meeting.
type joinRequest struct {
	MeetingID   string `json:"meetingId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"userName"`
}

// relayRequest is the client payload for the webrtc-* relay events.
type relayRequest struct {
	Target  ConnectionID    `json:"targetConnectionId"`
	Payload json.RawMessage `json:"payload"`
}

// relayDelivery is what the relay target receives.
type relayDelivery struct {
	Sender  ConnectionID    `json:"senderConnectionId"`
	Payload json.RawMessage `json:"payload"`
}

// chatRequest is the client payload for chat-message.
type chatRequest struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// audioRequest is the client payload for audio-data. Audio arrives base64
// encoded inside the JSON frame.
type audioRequest struct {
	Audio     []byte `json:"audioData"`
	MIMEType  string `json:"mimeType"`
	Language  string `json:"language"`
	Translate bool   `json:"translate"`
}

// startCaptionsRequest is the client payload for start-captions.
type startCaptionsRequest struct {
	Language string `json:"language"`
}

// endMeetingRequest is the client payload for end-meeting. MeetingID may be
// empty; the sender's bound room is used then.
type endMeetingRequest struct {
	MeetingID string `json:"meetingId"`
	Reason    string `json:"reason"`
}

// participantJoinedEvent announces a fresh join to the rest of the room.
type participantJoinedEvent struct {
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"userName"`
	ConnectionID ConnectionID `json:"connectionId"`
}

// participantReconnectedEvent announces a connection replacement to the rest
// of the room; the admitted connection itself never sees it.
type participantReconnectedEvent struct {
	UserID          UserID       `json:"userId"`
	OldConnectionID ConnectionID `json:"oldConnectionId"`
	NewConnectionID ConnectionID `json:"newConnectionId"`
}

// participantLeftEvent announces a departure to the remaining room members.
type participantLeftEvent struct {
	UserID       UserID       `json:"userId"`
	ConnectionID ConnectionID `json:"connectionId"`
}

// iceServersEvent carries the static relay configuration hints.
type iceServersEvent struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// chatHistoryEvent carries the recent persisted messages on admission.
type chatHistoryEvent struct {
	Messages []store.ChatMessage `json:"messages"`
}

// captionsStartedEvent announces that a participant enabled captions.
type captionsStartedEvent struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Language     string       `json:"language"`
}

// captionErrorEvent is the single advisory emitted for a failed clip.
type captionErrorEvent struct {
	Message string `json:"message"`
}

// meetingEndedEvent announces room teardown.
type meetingEndedEvent struct {
	MeetingID MeetingID `json:"meetingId"`
	Reason    string    `json:"reason"`
}

// screenShareEvent announces a share toggle; echo-suppressed to the origin.
type screenShareEvent struct {
	ConnectionID ConnectionID `json:"connectionId"`
}
