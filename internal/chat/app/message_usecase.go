package app

import (
	"context"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/metrics"

	"go.uber.org/zap"
)

const (
	// DefaultHistoryLimit page size of history when the client sends none
	DefaultHistoryLimit int64 = 50
	// MaxHistoryLimit upper bound of one history page
	MaxHistoryLimit int64 = 100
)

// MessageUseCase message fan-out pipeline
type MessageUseCase struct {
	chatRepo    repository.ChatRepository
	msgRepo     repository.MessageRepository
	readRepo    repository.ReadPositionRepository
	notifyUC    *NotificationUseCase
	broadcaster *hub.Broadcaster
	journal     repository.EventJournal
	now         func() time.Time
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	readRepo repository.ReadPositionRepository,
	notifyUC *NotificationUseCase,
	broadcaster *hub.Broadcaster,
	journal repository.EventJournal,
) *MessageUseCase {
	return &MessageUseCase{
		chatRepo:    chatRepo,
		msgRepo:     msgRepo,
		readRepo:    readRepo,
		notifyUC:    notifyUC,
		broadcaster: broadcaster,
		journal:     journal,
		now:         time.Now,
	}
}

// Send validate -> membership -> persist -> sender read -> message:new -> notifications -> journal
// Any failure before persist aborts without side effects. Later steps are best-effort.
func (uc *MessageUseCase) Send(ctx context.Context, sender domain.Identity, in domain.SendMessageInput) (*domain.Message, error) {
	in.SenderID = sender.UserID
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	// 1. 檢查是否為聊天室成員
	if err := requireMember(ctx, uc.chatRepo, in.ChatID, sender.UserID); err != nil {
		return nil, err
	}

	// 2. 寫入 db
	msg, err := uc.msgRepo.PersistMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.Inc()

	// 3. 自己送出的訊息視為已讀
	if _, err := uc.readRepo.AdvanceReadPosition(ctx, msg.ChatID, sender.UserID, msg.CreatedAt); err != nil {
		logger.Log.Warn("sender read position not recorded",
			zap.String("chatID", msg.ChatID),
			zap.String("userID", sender.UserID),
			zap.Error(err))
	}

	// 4. 廣播給聊天室
	uc.broadcaster.Broadcast(domain.ChatRoom(msg.ChatID), domain.NewEvent(domain.EventMessageNew, domain.MessagePayload{Message: msg}))

	// 5. 通知其他成員
	if uc.notifyUC != nil {
		if _, err := uc.notifyUC.NotifyNewMessage(ctx, sender, msg); err != nil {
			logger.Log.Warn("new message notifications failed",
				zap.String("chatID", msg.ChatID),
				zap.String("messageID", msg.ID),
				zap.Error(err))
		}
	}

	appendJournal(ctx, uc.journal, domain.JournalEntry{
		Event:      domain.EventMessageNew,
		ChatID:     msg.ChatID,
		ActorID:    sender.UserID,
		Data:       msg,
		OccurredAt: msg.CreatedAt,
	})
	return msg, nil
}

// Edit only the sender can edit, only TEXT messages
func (uc *MessageUseCase) Edit(ctx context.Context, userID, messageID, content string) (*domain.Message, error) {
	content, err := domain.ValidateEditContent(content)
	if err != nil {
		return nil, err
	}
	msg, err := uc.msgRepo.PersistEdit(ctx, messageID, userID, content)
	if err != nil {
		return nil, err
	}

	uc.broadcaster.Broadcast(domain.ChatRoom(msg.ChatID), domain.NewEvent(domain.EventMessageEdited, domain.MessagePayload{Message: msg}))
	appendJournal(ctx, uc.journal, domain.JournalEntry{
		Event:      domain.EventMessageEdited,
		ChatID:     msg.ChatID,
		ActorID:    userID,
		Data:       msg,
		OccurredAt: msg.UpdatedAt,
	})
	return msg, nil
}

// Delete soft delete, only the sender
func (uc *MessageUseCase) Delete(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	msg, err := uc.msgRepo.PersistDelete(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	payload := domain.MessageDeletedPayload{MessageID: msg.ID, ChatID: msg.ChatID}
	uc.broadcaster.Broadcast(domain.ChatRoom(msg.ChatID), domain.NewEvent(domain.EventMessageDeleted, payload))
	appendJournal(ctx, uc.journal, domain.JournalEntry{
		Event:      domain.EventMessageDeleted,
		ChatID:     msg.ChatID,
		ActorID:    userID,
		Data:       payload,
		OccurredAt: uc.now().UTC(),
	})
	return msg, nil
}

// History newest first page of messages created before `before`
func (uc *MessageUseCase) History(ctx context.Context, chatID, userID string, before time.Time, limit int64) ([]domain.Message, error) {
	if err := requireMember(ctx, uc.chatRepo, chatID, userID); err != nil {
		return nil, err
	}
	if before.IsZero() {
		before = uc.now()
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return uc.msgRepo.FindMessagesBefore(ctx, chatID, before, limit)
}

// UnreadCount messages of others after the user's read position
func (uc *MessageUseCase) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	if err := requireMember(ctx, uc.chatRepo, chatID, userID); err != nil {
		return 0, err
	}
	since, err := uc.readRepo.FindReadPosition(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	return uc.msgRepo.CountUnreadSince(ctx, chatID, userID, since)
}
