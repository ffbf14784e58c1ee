package repository

import (
	"context"

	"chat_realtime_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnsureIndexes create the indexes the chat queries rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[domain.CollectionName][]mongo.IndexModel{
		domain.ChatCollection: {
			{Keys: bson.D{{Key: "member_ids", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "member_ids", Value: 1}}},
		},
		domain.MessageCollection: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		domain.ReadPositionCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(string(coll)).Indexes().CreateMany(ctx, models); err != nil {
			return storageErr("create indexes "+string(coll), err)
		}
	}
	return nil
}
