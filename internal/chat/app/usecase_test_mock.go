package app

import (
	"context"
	"time"

	"chat_realtime_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockChatRepository Mock ChatRepository
type MockChatRepository struct {
	mock.Mock
}

// CreateChat mock create chat
func (m *MockChatRepository) CreateChat(ctx context.Context, chat *domain.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

// FindByID mock find chat by id
func (m *MockChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindPrivateChat mock find private chat
func (m *MockChatRepository) FindPrivateChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByMember mock list chats
func (m *MockChatRepository) ListByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// AddMember mock add member
func (m *MockChatRepository) AddMember(ctx context.Context, chatID, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

// RemoveMember mock remove member
func (m *MockChatRepository) RemoveMember(ctx context.Context, chatID, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

// IsChatMember mock membership check
func (m *MockChatRepository) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

// ChatMemberIDs mock member snapshot
func (m *MockChatRepository) ChatMemberIDs(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateGroup mock update group
func (m *MockChatRepository) UpdateGroup(ctx context.Context, chatID string, patch domain.GroupPatch, at time.Time) (*domain.Chat, error) {
	args := m.Called(ctx, chatID, patch, at)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// SearchGroups mock search groups
func (m *MockChatRepository) SearchGroups(ctx context.Context, userID, query string, limit int64) ([]domain.Chat, error) {
	args := m.Called(ctx, userID, query, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// PersistMessage mock insert message
func (m *MockMessageRepository) PersistMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	args := m.Called(ctx, in)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// PersistEdit mock edit message
func (m *MockMessageRepository) PersistEdit(ctx context.Context, messageID, userID, content string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, userID, content)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// PersistDelete mock delete message
func (m *MockMessageRepository) PersistDelete(ctx context.Context, messageID, userID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ResolveMessageTimestamp mock message timestamp
func (m *MockMessageRepository) ResolveMessageTimestamp(ctx context.Context, chatID, messageID string) (time.Time, error) {
	args := m.Called(ctx, chatID, messageID)
	return args.Get(0).(time.Time), args.Error(1)
}

// FindMessagesBefore mock history
func (m *MockMessageRepository) FindMessagesBefore(ctx context.Context, chatID string, before time.Time, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnreadSince mock unread count
func (m *MockMessageRepository) CountUnreadSince(ctx context.Context, chatID, userID string, since time.Time) (int64, error) {
	args := m.Called(ctx, chatID, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockReadPositionRepository Mock ReadPositionRepository
type MockReadPositionRepository struct {
	mock.Mock
}

// AdvanceReadPosition mock advance
func (m *MockReadPositionRepository) AdvanceReadPosition(ctx context.Context, chatID, userID string, ts time.Time) (bool, error) {
	args := m.Called(ctx, chatID, userID, ts)
	return args.Bool(0), args.Error(1)
}

// FindReadPosition mock find
func (m *MockReadPositionRepository) FindReadPosition(ctx context.Context, chatID, userID string) (time.Time, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockNotificationRepository Mock NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

// PersistNotifications mock batch insert
func (m *MockNotificationRepository) PersistNotifications(ctx context.Context, recipientIDs []string, draft domain.NotificationDraft) ([]domain.Notification, error) {
	args := m.Called(ctx, recipientIDs, draft)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByUser mock list
func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, before, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnread mock unread count
func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MarkRead mock mark read
func (m *MockNotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

// MarkAllRead mock mark all read
func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// Delete mock delete
func (m *MockNotificationRepository) Delete(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

// MockEventJournal Mock EventJournal
type MockEventJournal struct {
	mock.Mock
}

// Append mock append
func (m *MockEventJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Close mock close
func (m *MockEventJournal) Close() error {
	args := m.Called()
	return args.Error(0)
}
