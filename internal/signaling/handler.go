package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"meet-coordinator/internal/captions"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// maxFrameSize bounds incoming frames; audio clips arrive base64 encoded
	// and a few seconds of opus-in-webm stays well under this.
	maxFrameSize = 4 << 20
)

// Handler upgrades websocket requests and drives each connection's read
// loop, write pump, and captioning queue.
type Handler struct {
	hub      *Hub
	router   *Router
	pipeline *captions.Pipeline
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler wiring the hub, router, and captioning
// pipeline together.
func NewHandler(hub *Hub, router *Router, pipeline *captions.Pipeline, log *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		router:   router,
		pipeline: pipeline,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement is the proxy's job in this deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws: upgrade, assign a connection id, and run the
// session until the peer goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := ConnectionID(uuid.NewString())
	conn := newWSConn(id, sock)
	h.hub.add(conn)
	h.log.Info("socket connected", slog.String("connection_id", string(id)))

	audio := make(chan captions.Job, audioQueueSize)
	go h.writePump(conn)
	go h.audioWorker(audio)

	h.readLoop(r.Context(), conn, audio)

	// Read loop is the only producer on the audio queue.
	close(audio)
	h.router.Disconnect(id)
	h.hub.remove(id)
	sock.Close()
	h.log.Info("socket disconnected", slog.String("connection_id", string(id)))
}

// writePump serializes all writes to the socket.
func (h *Handler) writePump(conn *wsConn) {
	for {
		select {
		case frame := <-conn.out:
			conn.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("write failed",
					slog.String("connection_id", string(conn.id)),
					slog.String("error", err.Error()))
				return
			}
		case <-conn.done:
			return
		}
	}
}

// audioWorker drains one connection's captioning queue sequentially, so a
// speaker's clips are transcribed and persisted in capture order. Jobs
// already submitted run to completion even after the connection drops.
func (h *Handler) audioWorker(audio <-chan captions.Job) {
	for job := range audio {
		h.pipeline.Process(context.Background(), job)
	}
}

// readLoop decodes envelopes off the socket and dispatches them until the
// peer disconnects. Malformed frames are logged and skipped; a broken
// connection ends the loop.
func (h *Handler) readLoop(ctx context.Context, conn *wsConn, audio chan<- captions.Job) {
	conn.sock.SetReadLimit(maxFrameSize)
	for {
		_, frame, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed",
					slog.String("connection_id", string(conn.id)),
					slog.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			h.log.Debug("malformed frame",
				slog.String("connection_id", string(conn.id)),
				slog.String("error", err.Error()))
			continue
		}
		h.dispatch(ctx, conn, env, audio)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *wsConn, env Envelope, audio chan<- captions.Job) {
	id := conn.id
	switch env.Event {
	case EventJoinMeeting:
		var req joinRequest
		if !h.decode(id, env, &req) {
			return
		}
		if req.MeetingID == "" || req.UserID == "" {
			return
		}
		if req.DisplayName == "" {
			req.DisplayName = "User"
		}
		h.router.Join(ctx, id, MeetingID(req.MeetingID), UserID(req.UserID), req.DisplayName)

	case EventLeaveMeeting:
		h.router.Leave(id)

	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		var req relayRequest
		if !h.decode(id, env, &req) {
			return
		}
		if req.Target == "" {
			return
		}
		h.router.Relay(id, req.Target, env.Event, req.Payload)

	case EventChatMessage:
		var req chatRequest
		if !h.decode(id, env, &req) {
			return
		}
		h.router.Chat(ctx, id, req.Text, req.Timestamp)

	case EventAudioData:
		var req audioRequest
		if !h.decode(id, env, &req) {
			return
		}
		h.enqueueAudio(conn, req, audio)

	case EventStartCaptions:
		// Payload is optional; no language means auto-detect.
		var req startCaptionsRequest
		if len(env.Data) > 0 && !h.decode(id, env, &req) {
			return
		}
		h.router.StartCaptions(id, req.Language)

	case EventStartScreenShare:
		h.router.ScreenShare(id, true)

	case EventStopScreenShare:
		h.router.ScreenShare(id, false)

	case EventEndMeeting:
		// Payload is optional; the sender's bound room is used by default.
		var req endMeetingRequest
		if len(env.Data) > 0 && !h.decode(id, env, &req) {
			return
		}
		h.router.EndMeeting(ctx, id, MeetingID(req.MeetingID), req.Reason)

	default:
		h.log.Debug("unknown event",
			slog.String("connection_id", string(id)),
			slog.String("event", env.Event))
	}
}

// enqueueAudio tags the clip with the sender's live identity and queues it.
// A full queue means the speaker is sending faster than the pipeline drains;
// the clip is dropped with a single advisory to the sender.
func (h *Handler) enqueueAudio(conn *wsConn, req audioRequest, audio chan<- captions.Job) {
	if len(req.Audio) == 0 {
		return
	}
	meetingID, userID, displayName, ok := h.router.SpeakerFor(conn.id)
	if !ok {
		return
	}

	job := captions.Job{
		MeetingID:    string(meetingID),
		ConnectionID: string(conn.id),
		SpeakerID:    string(userID),
		SpeakerName:  displayName,
		Audio:        req.Audio,
		MIMEType:     req.MIMEType,
		Language:     req.Language,
		Translate:    req.Translate,
	}

	select {
	case audio <- job:
	default:
		h.log.Warn("audio queue full, dropping clip",
			slog.String("connection_id", string(conn.id)),
			slog.String("meeting_id", string(meetingID)))
		h.hub.Send(conn.id, EventCaptionError, captionErrorEvent{Message: "captioning busy, clip dropped"})
	}
}

func (h *Handler) decode(id ConnectionID, env Envelope, v any) bool {
	if len(env.Data) == 0 {
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.log.Debug("malformed payload",
			slog.String("connection_id", string(id)),
			slog.String("event", env.Event),
			slog.String("error", err.Error()))
		return false
	}
	return true
}
