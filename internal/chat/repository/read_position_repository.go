package repository

import (
	"context"
	"errors"
	"time"

	"chat_realtime_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReadPositionRepository per (chat, user) read position
type ReadPositionRepository interface {
	AdvanceReadPosition(ctx context.Context, chatID, userID string, ts time.Time) (bool, error)
	FindReadPosition(ctx context.Context, chatID, userID string) (time.Time, error)
}

type readPositionRepository struct {
	coll *mongo.Collection
}

// NewMongoReadPositionRepository create ReadPositionRepository
func NewMongoReadPositionRepository(db *mongo.Database) ReadPositionRepository {
	return &readPositionRepository{
		coll: db.Collection(string(domain.ReadPositionCollection)),
	}
}

// AdvanceReadPosition conditional update: last_read_at = max(last_read_at, ts)
// It reports whether the stored position moved forward.
func (r *readPositionRepository) AdvanceReadPosition(ctx context.Context, chatID, userID string, ts time.Time) (bool, error) {
	filter := bson.M{"_id": domain.ReadPositionKey(chatID, userID)}
	update := bson.M{
		"$max":         bson.M{"last_read_at": ts},
		"$setOnInsert": bson.M{"chat_id": chatID, "user_id": userID},
	}
	opts := options.Update().SetUpsert(true)

	res, err := r.coll.UpdateOne(ctx, filter, update, opts)
	// two first-time upserts racing on the same _id, the loser retries as a plain update
	if mongo.IsDuplicateKeyError(err) {
		res, err = r.coll.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return false, storageErr("advance read position", err)
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

// FindReadPosition zero time when the user never read the chat
func (r *readPositionRepository) FindReadPosition(ctx context.Context, chatID, userID string) (time.Time, error) {
	var pos domain.ReadPosition
	err := r.coll.FindOne(ctx, bson.M{"_id": domain.ReadPositionKey(chatID, userID)}).Decode(&pos)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, storageErr("find read position", err)
	}
	return pos.LastReadAt, nil
}
