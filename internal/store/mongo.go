package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	meetingsCollection = "meetings"
	captionsCollection = "captions"
)

// MongoStore implements Store on top of a MongoDB database. Chat messages
// live embedded in the meeting document; captions live in a companion
// document in the captions collection, both appended with $push so ordering
// follows arrival.
type MongoStore struct {
	meetings *mongo.Collection
	captions *mongo.Collection
}

// NewMongoStore returns a MongoStore over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		meetings: db.Collection(meetingsCollection),
		captions: db.Collection(captionsCollection),
	}
}

// AppendChatMessage implements Store.AppendChatMessage.
func (s *MongoStore) AppendChatMessage(ctx context.Context, meetingID string, msg ChatMessage) error {
	_, err := s.meetings.UpdateOne(ctx,
		bson.M{"meeting_id": meetingID},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// RecentMessages implements Store.RecentMessages using a negative $slice
// projection so only the tail of the log crosses the wire.
func (s *MongoStore) RecentMessages(ctx context.Context, meetingID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	var doc struct {
		Messages []ChatMessage `bson:"messages"`
	}
	err := s.meetings.FindOne(ctx,
		bson.M{"meeting_id": meetingID},
		options.FindOne().SetProjection(bson.M{"messages": bson.M{"$slice": -limit}}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return doc.Messages, nil
}

// AppendCaption implements Store.AppendCaption.
func (s *MongoStore) AppendCaption(ctx context.Context, meetingID string, seg CaptionSegment) error {
	_, err := s.captions.UpdateOne(ctx,
		bson.M{"meeting_id": meetingID},
		bson.M{
			"$push": bson.M{"captions": seg},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{
				"created_at": time.Now().UTC(),
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append caption: %w", err)
	}
	return nil
}

// ListCaptions implements Store.ListCaptions.
func (s *MongoStore) ListCaptions(ctx context.Context, meetingID string) ([]CaptionSegment, error) {
	var doc struct {
		Captions []CaptionSegment `bson:"captions"`
	}
	err := s.captions.FindOne(ctx, bson.M{"meeting_id": meetingID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list captions: %w", err)
	}
	return doc.Captions, nil
}

// SetMeetingStatus implements Store.SetMeetingStatus.
func (s *MongoStore) SetMeetingStatus(ctx context.Context, meetingID, status string) error {
	update := bson.M{"status": status, "updated_at": time.Now().UTC()}
	if status == "ended" {
		update["ended_at"] = time.Now().UTC()
	}
	_, err := s.meetings.UpdateOne(ctx,
		bson.M{"meeting_id": meetingID},
		bson.M{"$set": update},
	)
	if err != nil {
		return fmt.Errorf("set meeting status: %w", err)
	}
	return nil
}

// MeetingStatus implements Store.MeetingStatus.
func (s *MongoStore) MeetingStatus(ctx context.Context, meetingID string) (string, error) {
	var doc struct {
		Status string `bson:"status"`
	}
	err := s.meetings.FindOne(ctx,
		bson.M{"meeting_id": meetingID},
		options.FindOne().SetProjection(bson.M{"status": 1}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", ErrMeetingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("meeting status: %w", err)
	}
	return doc.Status, nil
}
