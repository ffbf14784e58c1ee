package app

import (
	"context"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/logger"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultNotificationLimit page size of notification list
const DefaultNotificationLimit = 20

// NotificationUseCase 通知
type NotificationUseCase struct {
	chatRepo    repository.ChatRepository
	notifyRepo  repository.NotificationRepository
	broadcaster *hub.Broadcaster
}

// NewNotificationUseCase create NotificationUseCase
func NewNotificationUseCase(
	chatRepo repository.ChatRepository,
	notifyRepo repository.NotificationRepository,
	broadcaster *hub.Broadcaster,
) *NotificationUseCase {
	return &NotificationUseCase{
		chatRepo:    chatRepo,
		notifyRepo:  notifyRepo,
		broadcaster: broadcaster,
	}
}

// NotifyNewMessage persist one notification per member except the sender and push notification:new
// to each recipient's personal room. Recipients are the membership snapshot taken here.
func (uc *NotificationUseCase) NotifyNewMessage(ctx context.Context, sender domain.Identity, msg *domain.Message) ([]domain.Notification, error) {
	members, err := uc.chatRepo.ChatMemberIDs(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	recipients := lo.Without(lo.Uniq(members), sender.UserID)
	if len(recipients) == 0 {
		return nil, nil
	}

	chatName := ""
	if chat, err := uc.chatRepo.FindByID(ctx, msg.ChatID); err != nil {
		logger.Log.Warn("notification chat name lookup failed", zap.String("chatID", msg.ChatID), zap.Error(err))
	} else {
		chatName = chat.DisplayName()
	}

	senderName := sender.Username
	if senderName == "" {
		senderName = sender.UserID
	}

	records, err := uc.notifyRepo.PersistNotifications(ctx, recipients, domain.NewMessageDraft(senderName, chatName, msg))
	if err != nil {
		return nil, err
	}

	for i := range records {
		n := &records[i]
		uc.broadcaster.Broadcast(domain.UserRoom(n.UserID), domain.NewEvent(domain.EventNotificationNew, n.Payload()))
	}
	return records, nil
}

// List notifications of a user, newest first
func (uc *NotificationUseCase) List(ctx context.Context, userID string, before time.Time, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultNotificationLimit
	}
	if before.IsZero() {
		before = time.Now()
	}
	return uc.notifyRepo.ListByUser(ctx, userID, before, limit)
}

// UnreadCount unread notifications of a user
func (uc *NotificationUseCase) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return uc.notifyRepo.CountUnread(ctx, userID)
}

// MarkRead mark one notification read
func (uc *NotificationUseCase) MarkRead(ctx context.Context, userID, id string) error {
	return uc.notifyRepo.MarkRead(ctx, id, userID)
}

// MarkAllRead returns how many were updated
func (uc *NotificationUseCase) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return uc.notifyRepo.MarkAllRead(ctx, userID)
}

// Delete delete one notification of the user
func (uc *NotificationUseCase) Delete(ctx context.Context, userID, id string) error {
	return uc.notifyRepo.Delete(ctx, id, userID)
}
