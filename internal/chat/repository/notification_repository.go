package repository

import (
	"context"
	"fmt"
	"time"

	"chat_realtime_service/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// NotificationRepository definition notification storage
type NotificationRepository interface {
	PersistNotifications(ctx context.Context, recipientIDs []string, draft domain.NotificationDraft) ([]domain.Notification, error)
	ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository create a gorm NotificationRepository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// PersistNotifications one row per recipient in a single batch insert
func (r *notificationRepository) PersistNotifications(ctx context.Context, recipientIDs []string, draft domain.NotificationDraft) ([]domain.Notification, error) {
	recipientIDs = lo.Uniq(recipientIDs)
	if len(recipientIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := lo.Map(recipientIDs, func(userID string, _ int) domain.Notification {
		return domain.Notification{
			ID:          uuid.New().String(),
			UserID:      userID,
			Type:        draft.Type,
			Title:       draft.Title,
			Body:        draft.Body,
			ChatID:      draft.ChatID,
			MessageID:   draft.MessageID,
			TriggeredBy: draft.TriggeredBy,
			CreatedAt:   now,
		}
	})

	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, storageErr("create notifications", err)
	}
	return rows, nil
}

// ListByUser newest first, before zero means from now
func (r *notificationRepository) ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]domain.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	rows := []domain.Notification{}
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storageErr("list notifications", err)
	}
	return rows, nil
}

// CountUnread unread notifications of a user
func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, storageErr("count notifications", err)
	}
	return n, nil
}

// MarkRead one notification of the user
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return storageErr("mark notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return nil
}

// MarkAllRead every unread notification of the user
func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, storageErr("mark all notifications", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete one notification of the user
func (r *notificationRepository) Delete(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Notification{})
	if res.Error != nil {
		return storageErr("delete notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return nil
}
