package app

import (
	"context"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/logger"

	"go.uber.org/zap"
)

// requireMember single authorization check shared by join, send, history and read paths
func requireMember(ctx context.Context, chats repository.ChatRepository, chatID, userID string) error {
	ok, err := chats.IsChatMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotAuthorized
	}
	return nil
}

// appendJournal journal is best-effort, failures are only logged
func appendJournal(ctx context.Context, journal repository.EventJournal, entry domain.JournalEntry) {
	if journal == nil {
		return
	}
	if err := journal.Append(ctx, entry); err != nil {
		logger.Log.Warn("journal append failed",
			zap.String("event", string(entry.Event)),
			zap.String("chatID", entry.ChatID),
			zap.Error(err))
	}
}
