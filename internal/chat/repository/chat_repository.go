package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"chat_realtime_service/internal/chat/domain"
	errprocess "chat_realtime_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatRepository definition chat (private / group) storage
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *domain.Chat) error
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	FindPrivateChat(ctx context.Context, userA, userB string) (*domain.Chat, error)
	ListByMember(ctx context.Context, userID string) ([]domain.Chat, error)
	AddMember(ctx context.Context, chatID, userID string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	IsChatMember(ctx context.Context, chatID, userID string) (bool, error)
	ChatMemberIDs(ctx context.Context, chatID string) ([]string, error)
	UpdateGroup(ctx context.Context, chatID string, patch domain.GroupPatch, at time.Time) (*domain.Chat, error)
	SearchGroups(ctx context.Context, userID, query string, limit int64) ([]domain.Chat, error)
}

type chatRepository struct {
	coll *mongo.Collection
}

// NewMongoChatRepository create new mongo chat
func NewMongoChatRepository(db *mongo.Database) ChatRepository {
	return &chatRepository{
		coll: db.Collection(string(domain.ChatCollection)),
	}
}

// CreateChat create chat
func (r *chatRepository) CreateChat(ctx context.Context, chat *domain.Chat) error {
	if _, err := r.coll.InsertOne(ctx, chat); err != nil {
		return storageErr("create chat", err)
	}
	return nil
}

// FindByID find chat by id
func (r *chatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := r.coll.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat); err != nil {
		return nil, notFoundOr("find chat", err)
	}
	return &chat, nil
}

// FindPrivateChat find the private chat between two users
func (r *chatRepository) FindPrivateChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	filter := bson.M{
		"type":       domain.ChatTypePrivate,
		"member_ids": bson.M{"$all": []string{userA, userB}, "$size": 2},
	}
	var chat domain.Chat
	if err := r.coll.FindOne(ctx, filter).Decode(&chat); err != nil {
		return nil, notFoundOr("find private chat", err)
	}
	return &chat, nil
}

// ListByMember chats of a user, latest activity first
func (r *chatRepository) ListByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"member_ids": userID}, opts)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	chats := []domain.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, storageErr("decode chats", err)
	}
	return chats, nil
}

// AddMember add user to chat, idempotent
func (r *chatRepository) AddMember(ctx context.Context, chatID, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$addToSet": bson.M{"member_ids": userID}},
	)
	if err != nil {
		return storageErr("add member", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, chatID)
	}
	return nil
}

// RemoveMember remove user from chat, idempotent
func (r *chatRepository) RemoveMember(ctx context.Context, chatID, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$pull": bson.M{"member_ids": userID, "admins": userID}},
	)
	if err != nil {
		return storageErr("remove member", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, chatID)
	}
	return nil
}

// IsChatMember single membership check used by join, send and read paths
func (r *chatRepository) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": chatID, "member_ids": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, storageErr("is chat member", err)
	}
	return n > 0, nil
}

// ChatMemberIDs snapshot of the chat's members
func (r *chatRepository) ChatMemberIDs(ctx context.Context, chatID string) ([]string, error) {
	var chat struct {
		MemberIDs []string `bson:"member_ids"`
	}
	opts := options.FindOne().SetProjection(bson.M{"member_ids": 1})
	if err := r.coll.FindOne(ctx, bson.M{"_id": chatID}, opts).Decode(&chat); err != nil {
		return nil, notFoundOr("chat members", err)
	}
	return chat.MemberIDs, nil
}

// UpdateGroup apply the non-nil fields of patch and return the updated chat
func (r *chatRepository) UpdateGroup(ctx context.Context, chatID string, patch domain.GroupPatch, at time.Time) (*domain.Chat, error) {
	set := bson.M{"updated_at": at}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.AvatarURL != nil {
		set["avatar_url"] = *patch.AvatarURL
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var chat domain.Chat
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": chatID, "type": domain.ChatTypeGroup},
		bson.M{"$set": set},
		opts,
	).Decode(&chat)
	if err != nil {
		return nil, notFoundOr("update group", err)
	}
	return &chat, nil
}

// SearchGroups groups of userID whose name contains query, case-insensitive, ordered by name
func (r *chatRepository) SearchGroups(ctx context.Context, userID, query string, limit int64) ([]domain.Chat, error) {
	filter := bson.M{
		"type":       domain.ChatTypeGroup,
		"member_ids": userID,
		"name":       primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
	}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("search groups", err)
	}
	chats := []domain.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, storageErr("decode groups", err)
	}
	return chats, nil
}

// storageErr log the driver error, callers only see ErrStorage
func storageErr(op string, err error) error {
	return errprocess.Wrap(fmt.Errorf("%w: %v", domain.ErrStorage, err), op)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	return storageErr(op, err)
}
