// Package store provides the meeting document collaborator: durable chat and
// caption logs keyed by meeting id. The signaling and captioning code only
// depends on the Store interface; the MongoDB implementation is the production
// backend and MemoryStore backs tests and single-node development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrMeetingNotFound is returned when a meeting document does not exist.
var ErrMeetingNotFound = errors.New("meeting not found")

// ChatMessage is one persisted chat entry in a meeting document.
type ChatMessage struct {
	SenderID   string    `bson:"sender" json:"senderId"`
	SenderName string    `bson:"sender_name" json:"senderName"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

// CaptionSegment is one persisted unit of recognized speech attributed to a
// speaker. Immutable once appended; the caption log is strictly append-only
// and ordered by arrival.
type CaptionSegment struct {
	Speaker     string    `bson:"speaker" json:"speaker"`
	SpeakerName string    `bson:"speaker_name" json:"speakerName"`
	Text        string    `bson:"original_text" json:"text"`
	Language    string    `bson:"original_language" json:"language"`
	Confidence  float64   `bson:"confidence" json:"confidence"`
	Duration    float64   `bson:"duration" json:"duration"`
	IsFinal     bool      `bson:"is_final" json:"isFinal"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// Store is the persistence contract the realtime core consumes. Appends are
// at-least per-document atomic; callers treat failures as best-effort (live
// broadcasts proceed even when a write is lost).
type Store interface {
	// AppendChatMessage appends one chat message to the meeting's message log,
	// creating the log on first append.
	AppendChatMessage(ctx context.Context, meetingID string, msg ChatMessage) error

	// RecentMessages returns up to limit most recent chat messages for the
	// meeting, oldest first. A missing meeting yields an empty slice, not an
	// error.
	RecentMessages(ctx context.Context, meetingID string, limit int) ([]ChatMessage, error)

	// AppendCaption appends one caption segment to the meeting's caption log,
	// creating the log on first append.
	AppendCaption(ctx context.Context, meetingID string, seg CaptionSegment) error

	// ListCaptions returns the full ordered caption log for the meeting.
	// A missing meeting yields an empty slice, not an error.
	ListCaptions(ctx context.Context, meetingID string) ([]CaptionSegment, error)

	// MeetingStatus returns the lifecycle status of a meeting document
	// ("scheduled", "active", "ended"). Returns ErrMeetingNotFound when the
	// meeting does not exist.
	MeetingStatus(ctx context.Context, meetingID string) (string, error)

	// SetMeetingStatus updates the lifecycle status of an existing meeting
	// document. Setting the status of a missing meeting is a no-op.
	SetMeetingStatus(ctx context.Context, meetingID, status string) error
}
