package database

import (
	"context"
	"fmt"
	"time"

	"chat_realtime_service/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const mongoPingTimeout = 5 * time.Second

// NewMongoDB connect + ping with retry, RetryInterval is used as is
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(c.ConnectStr)

	var err error
	for i := 0; i <= c.RetryCount; i++ {
		var client *mongo.Client
		client, err = mongo.Connect(ctx, clientOpts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
			err = client.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				return &MongoDB{
					Client:   client,
					Database: client.Database(dbName),
				}, nil
			}
			_ = client.Disconnect(ctx)
		}

		logger.Log.Warn("Failed to connect to mongoDB, retrying...",
			zap.Int("attempt", i+1),
			zap.String("database", dbName),
			zap.Error(err),
		)
		if i < c.RetryCount {
			time.Sleep(c.RetryInterval)
		}
	}

	return nil, fmt.Errorf("failed to connect to MongoDB after retries: %w", err)
}

// Close disconnect mongoDB
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
