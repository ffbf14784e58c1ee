package database

import (
	"context"
	"fmt"
	"time"

	"chat_realtime_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// NewDatabaseConnection create a pgx pool, RetryInterval is in seconds
func NewDatabaseConnection(d Connection) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(d.ConnectStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	var pool *pgxpool.Pool
	for i := 0; i < d.RetryCount; i++ {
		pool, err = pgxpool.ConnectConfig(context.Background(), dbConfig)
		if err == nil {
			if err = pool.Ping(context.Background()); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Log.Warn(
			"Failed to connect to postgreSQL database, retrying...",
			zap.Int("attempt", i+1),
			zap.String("host", dbConfig.ConnConfig.Host),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}
	if err == nil {
		err = fmt.Errorf("retry count is %d", d.RetryCount)
	}
	return nil, fmt.Errorf("postgres connect after %d attempts: %w", d.RetryCount, err)
}
