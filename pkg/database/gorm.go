package database

import (
	"fmt"
	"time"

	"chat_realtime_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewGormConnection create a gorm postgres connection have retry
func NewGormConnection(d Connection, models ...interface{}) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 1; i <= d.RetryCount; i++ {
		db, err = gorm.Open(postgres.Open(d.ConnectStr), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}
		logger.Log.Warn(
			"Failed to connect gorm postgres, retrying...",
			zap.Int("attempt", i),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("gorm connect after %d attempts: %w", d.RetryCount, err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("gorm auto migrate: %w", err)
		}
	}
	return db, nil
}
