package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"meet-coordinator/internal/platform/metrics"
	"meet-coordinator/internal/store"
)

// DefaultChatHistoryLimit caps the chat backlog sent to a freshly admitted
// connection.
const DefaultChatHistoryLimit = 100

// Sender delivers one named event to one connection. Implemented by the Hub;
// delivery failures are the sender's to log, never the router's to abort on.
type Sender interface {
	Send(id ConnectionID, event string, payload any)
}

// Router implements the room broadcast protocol over the Registry: joins with
// reconnection detection, departures, directed call-setup relay, and
// room-scoped fan-out. All registry mutations complete before any
// notification goes out, so observers never see intermediate state.
type Router struct {
	reg     *Registry
	send    Sender
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics

	iceServers       []ICEServer
	chatHistoryLimit int
}

// NewRouter constructs a Router. metrics may be nil; chatHistoryLimit <= 0
// falls back to DefaultChatHistoryLimit.
func NewRouter(reg *Registry, send Sender, st store.Store, log *slog.Logger, m *metrics.Metrics, iceServers []ICEServer, chatHistoryLimit int) *Router {
	if chatHistoryLimit <= 0 {
		chatHistoryLimit = DefaultChatHistoryLimit
	}
	return &Router{
		reg:              reg,
		send:             send,
		store:            st,
		log:              log,
		metrics:          m,
		iceServers:       iceServers,
		chatHistoryLimit: chatHistoryLimit,
	}
}

// Registry exposes the registry for gauge scrapes.
func (rt *Router) Registry() *Registry { return rt.reg }

// Join admits a connection into a meeting room. A user who already holds a
// live connection in the room is treated as a reconnection: the stale
// connection is replaced, the rest of the room gets participant-reconnected,
// and no participant-joined is emitted. A fresh join broadcasts
// participant-joined to the other members. Either way the admitted connection
// then receives the relay hints, the current peer list, and the recent chat
// backlog.
func (rt *Router) Join(ctx context.Context, connID ConnectionID, meetingID MeetingID, userID UserID, displayName string) {
	replaced, reconnected := rt.reg.Admit(Connection{
		ID:          connID,
		UserID:      userID,
		DisplayName: displayName,
		MeetingID:   meetingID,
	})

	if reconnected {
		rt.log.Info("participant reconnected",
			slog.String("meeting_id", string(meetingID)),
			slog.String("user_id", string(userID)),
			slog.String("old_connection_id", string(replaced.ID)),
			slog.String("new_connection_id", string(connID)))
		if rt.metrics != nil {
			rt.metrics.IncReconnections()
		}
		rt.fanOut(meetingID, EventParticipantReconnected, participantReconnectedEvent{
			UserID:          userID,
			OldConnectionID: replaced.ID,
			NewConnectionID: connID,
		}, connID)
	} else {
		rt.log.Info("participant joined",
			slog.String("meeting_id", string(meetingID)),
			slog.String("user_id", string(userID)),
			slog.String("connection_id", string(connID)))
		if rt.metrics != nil {
			rt.metrics.IncJoins()
		}
		rt.fanOut(meetingID, EventParticipantJoined, participantJoinedEvent{
			UserID:       userID,
			DisplayName:  displayName,
			ConnectionID: connID,
		}, connID)
	}

	rt.send.Send(connID, EventICEServers, iceServersEvent{ICEServers: rt.iceServers})
	rt.send.Send(connID, EventExistingParticipants, rt.reg.Peers(meetingID, connID))

	history, err := rt.store.RecentMessages(ctx, string(meetingID), rt.chatHistoryLimit)
	if err != nil {
		rt.log.Error("chat history fetch failed",
			slog.String("meeting_id", string(meetingID)),
			slog.String("error", err.Error()))
		history = nil
	}
	rt.send.Send(connID, EventChatHistory, chatHistoryEvent{Messages: history})
}

// Leave removes the connection from its room on explicit client request and
// notifies the remaining members.
func (rt *Router) Leave(connID ConnectionID) {
	rt.remove(connID, "participant left")
}

// Disconnect is the transport-loss variant of Leave. Idempotent: a second
// call for the same id is a no-op.
func (rt *Router) Disconnect(connID ConnectionID) {
	rt.remove(connID, "participant disconnected")
}

func (rt *Router) remove(connID ConnectionID, reason string) {
	departed, remaining, ok := rt.reg.Remove(connID)
	if !ok || departed.MeetingID == "" {
		return
	}
	rt.log.Info(reason,
		slog.String("meeting_id", string(departed.MeetingID)),
		slog.String("user_id", string(departed.UserID)),
		slog.String("connection_id", string(connID)))
	payload := participantLeftEvent{UserID: departed.UserID, ConnectionID: connID}
	for _, id := range remaining {
		rt.send.Send(id, EventParticipantLeft, payload)
	}
}

// Relay delivers a call-setup message (offer/answer/ice-candidate) to exactly
// one target, tagging the payload with the sender's connection id. A target
// that no longer exists is a silent no-op: call setup is inherently racy
// against concurrent disconnects.
func (rt *Router) Relay(from, to ConnectionID, event string, payload json.RawMessage) {
	if _, ok := rt.reg.Lookup(to); !ok {
		return
	}
	if rt.metrics != nil {
		rt.metrics.IncRelayed()
	}
	rt.send.Send(to, event, relayDelivery{Sender: from, Payload: payload})
}

// BroadcastToRoom fans an event out to every room member except exclude
// (pass "" to reach everyone).
func (rt *Router) BroadcastToRoom(meetingID MeetingID, event string, payload any, exclude ConnectionID) {
	rt.fanOut(meetingID, event, payload, exclude)
}

// Chat persists a chat message and broadcasts it to the whole room, sender
// included. The sender identity comes from the connection's binding, never
// from the client payload. Persistence is best-effort: a failed append is
// logged and the broadcast still goes out.
func (rt *Router) Chat(ctx context.Context, connID ConnectionID, text string, ts time.Time) {
	conn, ok := rt.reg.Lookup(connID)
	if !ok || conn.MeetingID == "" {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	msg := store.ChatMessage{
		SenderID:   string(conn.UserID),
		SenderName: conn.DisplayName,
		Text:       text,
		Timestamp:  ts,
	}
	if err := rt.store.AppendChatMessage(ctx, string(conn.MeetingID), msg); err != nil {
		rt.log.Error("chat append failed",
			slog.String("meeting_id", string(conn.MeetingID)),
			slog.String("error", err.Error()))
		if rt.metrics != nil {
			rt.metrics.IncPersistenceFailures()
		}
	}
	if rt.metrics != nil {
		rt.metrics.IncChatMessages()
	}
	rt.fanOut(conn.MeetingID, EventChatMessage, msg, "")
}

// StartCaptions announces that a participant enabled captioning.
func (rt *Router) StartCaptions(connID ConnectionID, language string) {
	conn, ok := rt.reg.Lookup(connID)
	if !ok || conn.MeetingID == "" {
		return
	}
	rt.fanOut(conn.MeetingID, EventCaptionsStarted, captionsStartedEvent{
		ConnectionID: connID,
		Language:     language,
	}, "")
}

// ScreenShare broadcasts a share toggle to the other room members.
func (rt *Router) ScreenShare(connID ConnectionID, started bool) {
	conn, ok := rt.reg.Lookup(connID)
	if !ok || conn.MeetingID == "" {
		return
	}
	event := EventScreenShareStopped
	if started {
		event = EventScreenShareStarted
	}
	rt.fanOut(conn.MeetingID, event, screenShareEvent{ConnectionID: connID}, connID)
}

// EndMeeting tears the room down: every member gets meeting-ended, the room
// entry plus all its bindings are removed, and the meeting document is marked
// ended (best-effort).
func (rt *Router) EndMeeting(ctx context.Context, connID ConnectionID, meetingID MeetingID, reason string) {
	if meetingID == "" {
		conn, ok := rt.reg.Lookup(connID)
		if !ok {
			return
		}
		meetingID = conn.MeetingID
	}
	if reason == "" {
		reason = "Host ended the meeting"
	}

	members := rt.reg.DropRoom(meetingID)
	if len(members) == 0 {
		return
	}
	rt.log.Info("meeting ended",
		slog.String("meeting_id", string(meetingID)),
		slog.String("connection_id", string(connID)))
	payload := meetingEndedEvent{MeetingID: meetingID, Reason: reason}
	for _, id := range members {
		rt.send.Send(id, EventMeetingEnded, payload)
	}

	if err := rt.store.SetMeetingStatus(ctx, string(meetingID), "ended"); err != nil {
		rt.log.Error("meeting status update failed",
			slog.String("meeting_id", string(meetingID)),
			slog.String("error", err.Error()))
		if rt.metrics != nil {
			rt.metrics.IncPersistenceFailures()
		}
	}
}

// CaptionUpdate broadcasts one accepted caption segment to its room.
// Implements the captioning pipeline's notifier.
func (rt *Router) CaptionUpdate(meetingID string, seg store.CaptionSegment) {
	rt.fanOut(MeetingID(meetingID), EventCaptionUpdate, seg, "")
}

// CaptionError broadcasts a single advisory failure for a clip.
// Implements the captioning pipeline's notifier.
func (rt *Router) CaptionError(meetingID, message string) {
	rt.fanOut(MeetingID(meetingID), EventCaptionError, captionErrorEvent{Message: message}, "")
}

// SpeakerFor resolves the live identity bound to a connection, for tagging
// captioning jobs.
func (rt *Router) SpeakerFor(connID ConnectionID) (meetingID MeetingID, userID UserID, displayName string, ok bool) {
	conn, found := rt.reg.Lookup(connID)
	if !found || conn.MeetingID == "" {
		return "", "", "", false
	}
	return conn.MeetingID, conn.UserID, conn.DisplayName, true
}

func (rt *Router) fanOut(meetingID MeetingID, event string, payload any, exclude ConnectionID) {
	for _, id := range rt.reg.Members(meetingID, exclude) {
		rt.send.Send(id, event, payload)
	}
}
