package errprocess

import (
	"errors"
	"fmt"

	"chat_realtime_service/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log and wrap err with a message, nil stays nil
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(msg, zap.Error(err))
	return fmt.Errorf("%s: %w", msg, err)
}
