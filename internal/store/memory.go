package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store. It backs tests and
// development runs without a MongoDB instance. State lives for the process
// lifetime only.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]ChatMessage
	captions map[string][]CaptionSegment
	statuses map[string]string
}

// NewMemoryStore returns a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]ChatMessage),
		captions: make(map[string][]CaptionSegment),
		statuses: make(map[string]string),
	}
}

// AppendChatMessage implements Store.AppendChatMessage.
func (s *MemoryStore) AppendChatMessage(_ context.Context, meetingID string, msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[meetingID] = append(s.messages[meetingID], msg)
	return nil
}

// RecentMessages implements Store.RecentMessages.
func (s *MemoryStore) RecentMessages(_ context.Context, meetingID string, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[meetingID]
	if limit <= 0 || len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendCaption implements Store.AppendCaption.
func (s *MemoryStore) AppendCaption(_ context.Context, meetingID string, seg CaptionSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions[meetingID] = append(s.captions[meetingID], seg)
	return nil
}

// ListCaptions implements Store.ListCaptions.
func (s *MemoryStore) ListCaptions(_ context.Context, meetingID string) ([]CaptionSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segs := s.captions[meetingID]
	out := make([]CaptionSegment, len(segs))
	copy(out, segs)
	return out, nil
}

// MeetingStatus implements Store.MeetingStatus.
func (s *MemoryStore) MeetingStatus(_ context.Context, meetingID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[meetingID]
	if !ok {
		return "", ErrMeetingNotFound
	}
	return status, nil
}

// SetMeetingStatus implements Store.SetMeetingStatus.
func (s *MemoryStore) SetMeetingStatus(_ context.Context, meetingID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[meetingID] = status
	return nil
}
