package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type messageFixture struct {
	chatRepo   *MockChatRepository
	msgRepo    *MockMessageRepository
	readRepo   *MockReadPositionRepository
	notifyRepo *MockNotificationRepository
	journal    *MockEventJournal
	registry   *hub.Registry
	uc         *MessageUseCase
}

func newMessageFixture() *messageFixture {
	f := &messageFixture{
		chatRepo:   new(MockChatRepository),
		msgRepo:    new(MockMessageRepository),
		readRepo:   new(MockReadPositionRepository),
		notifyRepo: new(MockNotificationRepository),
		journal:    new(MockEventJournal),
		registry:   hub.NewRegistry(),
	}
	b := hub.NewBroadcaster(f.registry)
	notifyUC := NewNotificationUseCase(f.chatRepo, f.notifyRepo, b)
	f.uc = NewMessageUseCase(f.chatRepo, f.msgRepo, f.readRepo, notifyUC, b, f.journal)
	return f
}

// join register a connection with its personal room and the chat room
func (f *messageFixture) join(connID, userID, chatID string) *recorder {
	rec := &recorder{}
	_, _ = f.registry.Register(connID, userID, rec)
	_ = f.registry.JoinRoom(connID, domain.UserRoom(userID))
	_ = f.registry.JoinRoom(connID, domain.ChatRoom(chatID))
	return rec
}

func TestMessageUseCase_Send(t *testing.T) {
	ctx := context.Background()
	alice := domain.Identity{UserID: "alice", Username: "Alice"}
	createdAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// **情境 1: 成功送出，雙方收到 message:new，只有 bob 收到通知**
	t.Run("成功送出", func(t *testing.T) {
		f := newMessageFixture()
		c1 := f.join("c1", "alice", "G")
		c2 := f.join("c2", "bob", "G")

		msg := &domain.Message{ID: "m1", ChatID: "G", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText, CreatedAt: createdAt}

		f.chatRepo.On("IsChatMember", ctx, "G", "alice").Return(true, nil).Once()
		f.msgRepo.On("PersistMessage", ctx, mock.MatchedBy(func(in domain.SendMessageInput) bool {
			return in.ChatID == "G" && in.SenderID == "alice" && in.Content == "hi" && in.Type == domain.MessageTypeText
		})).Return(msg, nil).Once()
		f.readRepo.On("AdvanceReadPosition", ctx, "G", "alice", createdAt).Return(true, nil).Once()
		f.chatRepo.On("ChatMemberIDs", ctx, "G").Return([]string{"alice", "bob"}, nil).Once()
		f.chatRepo.On("FindByID", ctx, "G").Return(&domain.Chat{ID: "G", Type: domain.ChatTypeGroup, Name: "Team"}, nil).Once()
		f.notifyRepo.On("PersistNotifications", ctx, []string{"bob"}, mock.MatchedBy(func(d domain.NotificationDraft) bool {
			return d.Title == "Alice in Team" && d.Body == "hi" && d.MessageID == "m1"
		})).Return([]domain.Notification{{ID: "n1", UserID: "bob", Type: domain.NotificationNewMessage, Title: "Alice in Team", ChatID: "G"}}, nil).Once()
		f.journal.On("Append", ctx, mock.MatchedBy(func(e domain.JournalEntry) bool {
			return e.Event == domain.EventMessageNew && e.ChatID == "G"
		})).Return(nil).Once()

		got, err := f.uc.Send(ctx, alice, domain.SendMessageInput{ChatID: "G", Content: "  hi "})

		require.NoError(t, err)
		assert.Equal(t, "m1", got.ID)
		assert.Equal(t, 1, c1.count(domain.EventMessageNew))
		assert.Equal(t, 1, c2.count(domain.EventMessageNew))
		assert.Equal(t, 0, c1.count(domain.EventNotificationNew))
		require.Equal(t, 1, c2.count(domain.EventNotificationNew))

		var n domain.NotificationPayload
		require.NoError(t, json.Unmarshal(c2.events(domain.EventNotificationNew)[0].Data, &n))
		assert.Equal(t, "n1", n.ID)

		f.chatRepo.AssertExpectations(t)
		f.msgRepo.AssertExpectations(t)
		f.readRepo.AssertExpectations(t)
		f.notifyRepo.AssertExpectations(t)
		f.journal.AssertExpectations(t)
	})

	// **情境 2: 非成員，不寫入也不廣播**
	t.Run("非聊天室成員", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		f.chatRepo.On("IsChatMember", ctx, "G", "alice").Return(false, nil).Once()

		_, err := f.uc.Send(ctx, alice, domain.SendMessageInput{ChatID: "G", Content: "hi"})

		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		f.msgRepo.AssertNotCalled(t, "PersistMessage", mock.Anything, mock.Anything)
		assert.Equal(t, 0, c2.count(domain.EventMessageNew))
	})

	// **情境 3: 寫入失敗，不廣播**
	t.Run("寫入失敗", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		f.chatRepo.On("IsChatMember", ctx, "G", "alice").Return(true, nil).Once()
		f.msgRepo.On("PersistMessage", ctx, mock.Anything).Return(nil, domain.ErrStorage).Once()

		_, err := f.uc.Send(ctx, alice, domain.SendMessageInput{ChatID: "G", Content: "hi"})

		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.Equal(t, 0, c2.count(domain.EventMessageNew))
		f.readRepo.AssertNotCalled(t, "AdvanceReadPosition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	// **情境 4: 格式錯誤，沒有任何 side effect**
	t.Run("內容為空", func(t *testing.T) {
		f := newMessageFixture()

		_, err := f.uc.Send(ctx, alice, domain.SendMessageInput{ChatID: "G", Content: "   "})

		assert.ErrorIs(t, err, domain.ErrValidation)
		f.chatRepo.AssertNotCalled(t, "IsChatMember", mock.Anything, mock.Anything, mock.Anything)
	})

	// **情境 5: 已讀與通知失敗不影響送出**
	t.Run("已讀與通知失敗", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		msg := &domain.Message{ID: "m2", ChatID: "G", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText, CreatedAt: createdAt}

		f.chatRepo.On("IsChatMember", ctx, "G", "alice").Return(true, nil).Once()
		f.msgRepo.On("PersistMessage", ctx, mock.Anything).Return(msg, nil).Once()
		f.readRepo.On("AdvanceReadPosition", ctx, "G", "alice", createdAt).Return(false, errors.New("mongo down")).Once()
		f.chatRepo.On("ChatMemberIDs", ctx, "G").Return(nil, domain.ErrStorage).Once()
		f.journal.On("Append", ctx, mock.Anything).Return(errors.New("broker down")).Once()

		got, err := f.uc.Send(ctx, alice, domain.SendMessageInput{ChatID: "G", Content: "hi"})

		require.NoError(t, err)
		assert.Equal(t, "m2", got.ID)
		assert.Equal(t, 1, c2.count(domain.EventMessageNew))
		assert.Equal(t, 0, c2.count(domain.EventNotificationNew))
	})
}

func TestMessageUseCase_EditDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("編輯成功", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		edited := &domain.Message{ID: "m1", ChatID: "G", SenderID: "alice", Content: "fixed", IsEdited: true}
		f.msgRepo.On("PersistEdit", ctx, "m1", "alice", "fixed").Return(edited, nil).Once()
		f.journal.On("Append", ctx, mock.Anything).Return(nil).Once()

		got, err := f.uc.Edit(ctx, "alice", "m1", " fixed ")

		require.NoError(t, err)
		assert.True(t, got.IsEdited)
		assert.Equal(t, 1, c2.count(domain.EventMessageEdited))
	})

	t.Run("非本人編輯", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		f.msgRepo.On("PersistEdit", ctx, "m1", "bob", "x").Return(nil, domain.ErrNotOwner).Once()

		_, err := f.uc.Edit(ctx, "bob", "m1", "x")

		assert.ErrorIs(t, err, domain.ErrNotOwner)
		assert.Equal(t, 0, c2.count(domain.EventMessageEdited))
	})

	t.Run("刪除成功", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		f.msgRepo.On("PersistDelete", ctx, "m1", "alice").Return(&domain.Message{ID: "m1", ChatID: "G", IsDeleted: true}, nil).Once()
		f.journal.On("Append", ctx, mock.Anything).Return(nil).Once()

		_, err := f.uc.Delete(ctx, "alice", "m1")

		require.NoError(t, err)
		require.Equal(t, 1, c2.count(domain.EventMessageDeleted))
		var p domain.MessageDeletedPayload
		require.NoError(t, json.Unmarshal(c2.events(domain.EventMessageDeleted)[0].Data, &p))
		assert.Equal(t, domain.MessageDeletedPayload{MessageID: "m1", ChatID: "G"}, p)
	})

	t.Run("重複刪除", func(t *testing.T) {
		f := newMessageFixture()
		c2 := f.join("c2", "bob", "G")
		f.msgRepo.On("PersistDelete", ctx, "m1", "alice").Return(&domain.Message{ID: "m1", ChatID: "G", IsDeleted: true}, nil).Twice()
		f.journal.On("Append", ctx, mock.Anything).Return(nil).Twice()

		_, err := f.uc.Delete(ctx, "alice", "m1")
		require.NoError(t, err)
		msg, err := f.uc.Delete(ctx, "alice", "m1")

		require.NoError(t, err)
		assert.True(t, msg.IsDeleted)
		assert.Equal(t, 2, c2.count(domain.EventMessageDeleted))
	})

	t.Run("不是自己的訊息", func(t *testing.T) {
		f := newMessageFixture()
		f.msgRepo.On("PersistDelete", ctx, "m1", "bob").Return(nil, domain.ErrNotOwner).Once()

		_, err := f.uc.Delete(ctx, "bob", "m1")

		assert.ErrorIs(t, err, domain.ErrNotOwner)
	})
}

func TestMessageUseCase_History(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	f := newMessageFixture()
	f.chatRepo.On("IsChatMember", ctx, "G", "alice").Return(true, nil)
	f.msgRepo.On("FindMessagesBefore", ctx, "G", before, MaxHistoryLimit).Return([]domain.Message{{ID: "m1"}}, nil).Once()
	f.msgRepo.On("FindMessagesBefore", ctx, "G", before, DefaultHistoryLimit).Return([]domain.Message{}, nil).Once()

	msgs, err := f.uc.History(ctx, "G", "alice", before, 1000)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.uc.History(ctx, "G", "alice", before, 0)
	require.NoError(t, err)
	f.msgRepo.AssertExpectations(t)

	f.chatRepo.On("IsChatMember", ctx, "G", "mallory").Return(false, nil)
	_, err = f.uc.History(ctx, "G", "mallory", before, 10)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestMessageUseCase_UnreadCount(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	f := newMessageFixture()
	f.chatRepo.On("IsChatMember", ctx, "G", "bob").Return(true, nil)
	f.readRepo.On("FindReadPosition", ctx, "G", "bob").Return(since, nil)
	f.msgRepo.On("CountUnreadSince", ctx, "G", "bob", since).Return(int64(3), nil)

	n, err := f.uc.UnreadCount(ctx, "G", "bob")

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
