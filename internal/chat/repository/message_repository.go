package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat_realtime_service/internal/chat/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition chat message storage
type MessageRepository interface {
	PersistMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error)
	PersistEdit(ctx context.Context, messageID, userID, content string) (*domain.Message, error)
	PersistDelete(ctx context.Context, messageID, userID string) (*domain.Message, error)
	ResolveMessageTimestamp(ctx context.Context, chatID, messageID string) (time.Time, error)
	FindMessagesBefore(ctx context.Context, chatID string, before time.Time, limit int64) ([]domain.Message, error)
	CountUnreadSince(ctx context.Context, chatID, userID string, since time.Time) (int64, error)
}

type chatMessageRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection(string(domain.MessageCollection)),
		now:  time.Now,
	}
}

// mongo keeps milliseconds, truncate so the stored and returned times match
func (r *chatMessageRepository) stamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// PersistMessage InsertMessage - 寫入一筆聊天訊息
func (r *chatMessageRepository) PersistMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	now := r.stamp()
	msg := &domain.Message{
		ID:          uuid.New().String(),
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		Type:        in.Type,
		Attachments: in.Attachments,
		ReplyToID:   in.ReplyToID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return nil, storageErr("insert message", err)
	}

	// bump chat activity for list ordering, best-effort
	_, _ = r.coll.Database().Collection(string(domain.ChatCollection)).UpdateOne(ctx,
		bson.M{"_id": in.ChatID},
		bson.M{"$set": bson.M{"updated_at": now}},
	)
	return msg, nil
}

// PersistEdit owner only, not deleted, TEXT only
func (r *chatMessageRepository) PersistEdit(ctx context.Context, messageID, userID, content string) (*domain.Message, error) {
	current, err := r.find(ctx, messageID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.SenderID != userID:
		return nil, domain.ErrNotOwner
	case current.IsDeleted:
		return nil, domain.ErrAlreadyDeleted
	case current.Type != domain.MessageTypeText:
		return nil, fmt.Errorf("%w: only text messages can be edited", domain.ErrValidation)
	}

	filter := bson.M{"_id": messageID, "sender_id": userID, "is_deleted": false}
	update := bson.M{"$set": bson.M{
		"content":    content,
		"is_edited":  true,
		"updated_at": r.stamp(),
	}}
	return r.findAndUpdate(ctx, filter, update)
}

// PersistDelete soft delete, content and attachments are cleared
// Deleting an already deleted message applies the same update again.
func (r *chatMessageRepository) PersistDelete(ctx context.Context, messageID, userID string) (*domain.Message, error) {
	current, err := r.find(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID != userID {
		return nil, domain.ErrNotOwner
	}

	filter := bson.M{"_id": messageID, "sender_id": userID}
	update := bson.M{
		"$set": bson.M{
			"content":    "",
			"is_deleted": true,
			"updated_at": r.stamp(),
		},
		"$unset": bson.M{"attachments": ""},
	}
	msg, err := r.findAndUpdate(ctx, filter, update)
	if errors.Is(err, domain.ErrAlreadyDeleted) {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	return msg, err
}

// ResolveMessageTimestamp creation time of a message in chat
func (r *chatMessageRepository) ResolveMessageTimestamp(ctx context.Context, chatID, messageID string) (time.Time, error) {
	var doc struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	opts := options.FindOne().SetProjection(bson.M{"created_at": 1})
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID, "chat_id": chatID}, opts).Decode(&doc)
	if err != nil {
		return time.Time{}, notFoundOr("resolve message", err)
	}
	return doc.CreatedAt, nil
}

// FindMessagesBefore newest first page of a chat, deleted messages excluded
func (r *chatMessageRepository) FindMessagesBefore(ctx context.Context, chatID string, before time.Time, limit int64) ([]domain.Message, error) {
	filter := bson.M{
		"chat_id":    chatID,
		"is_deleted": false,
		"created_at": bson.M{"$lt": before},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("find messages", err)
	}
	messages := []domain.Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, storageErr("decode messages", err)
	}
	return messages, nil
}

// CountUnreadSince messages from others created after since
func (r *chatMessageRepository) CountUnreadSince(ctx context.Context, chatID, userID string, since time.Time) (int64, error) {
	filter := bson.M{
		"chat_id":    chatID,
		"sender_id":  bson.M{"$ne": userID},
		"is_deleted": false,
		"created_at": bson.M{"$gt": since},
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, storageErr("count unread", err)
	}
	return n, nil
}

func (r *chatMessageRepository) find(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		return nil, notFoundOr("find message", err)
	}
	return &msg, nil
}

// the filter repeats the ownership checks, a concurrent delete makes the update miss
func (r *chatMessageRepository) findAndUpdate(ctx context.Context, filter, update bson.M) (*domain.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var msg domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrAlreadyDeleted
	}
	if err != nil {
		return nil, storageErr("update message", err)
	}
	return &msg, nil
}
