package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageInput_Normalize(t *testing.T) {
	t.Run("content only defaults to TEXT", func(t *testing.T) {
		in := SendMessageInput{ChatID: "g", SenderID: "alice", Content: "  hi  "}
		require.NoError(t, in.Normalize())
		assert.Equal(t, "hi", in.Content)
		assert.Equal(t, MessageTypeText, in.Type)
	})

	t.Run("attachments with TEXT become FILE", func(t *testing.T) {
		in := SendMessageInput{
			ChatID:      "g",
			SenderID:    "alice",
			Type:        MessageTypeText,
			Attachments: []Attachment{{ID: "a1", Filename: "x.pdf"}},
		}
		require.NoError(t, in.Normalize())
		assert.Equal(t, MessageTypeFile, in.Type)
	})

	t.Run("image type is kept", func(t *testing.T) {
		in := SendMessageInput{
			ChatID:      "g",
			SenderID:    "alice",
			Type:        MessageTypeImage,
			Attachments: []Attachment{{ID: "a1"}},
		}
		require.NoError(t, in.Normalize())
		assert.Equal(t, MessageTypeImage, in.Type)
	})

	cases := []struct {
		name string
		in   SendMessageInput
	}{
		{"empty", SendMessageInput{ChatID: "g", SenderID: "alice", Content: "   "}},
		{"missing chat", SendMessageInput{SenderID: "alice", Content: "hi"}},
		{"too long", SendMessageInput{ChatID: "g", SenderID: "alice", Content: strings.Repeat("a", MaxContentLength+1)}},
		{"unknown type", SendMessageInput{ChatID: "g", SenderID: "alice", Content: "hi", Type: "SYSTEM"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Normalize()
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPreviewBody(t *testing.T) {
	assert.Equal(t, "hi", PreviewBody(&Message{Content: "hi"}))
	assert.Equal(t, attachmentPreview, PreviewBody(&Message{Attachments: []Attachment{{ID: "a"}}}))

	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, PreviewBody(&Message{Content: exact}))

	long := strings.Repeat("é", 150)
	got := PreviewBody(&Message{Content: long})
	assert.Equal(t, strings.Repeat("é", 97)+"…", got)
}

func TestNewMessageDraft(t *testing.T) {
	msg := &Message{ID: "m1", ChatID: "g", SenderID: "alice", Content: "hi"}

	group := NewMessageDraft("Alice", "Team", msg)
	assert.Equal(t, "Alice in Team", group.Title)
	assert.Equal(t, NotificationNewMessage, group.Type)
	assert.Equal(t, "m1", group.MessageID)

	private := NewMessageDraft("Alice", "", msg)
	assert.Equal(t, "Alice", private.Title)
}

func TestDecodeClientEvent(t *testing.T) {
	t.Run("join:chat", func(t *testing.T) {
		ev, err := DecodeClientEvent(WSRequest{Event: "join:chat", Data: json.RawMessage(`{"chatId":"g"}`)})
		require.NoError(t, err)
		join, ok := ev.(*JoinChatRequest)
		require.True(t, ok)
		assert.Equal(t, "g", join.ChatID)
		assert.Equal(t, JoinChat, ev.Action())
	})

	t.Run("send:message", func(t *testing.T) {
		ev, err := DecodeClientEvent(WSRequest{
			Event: "send:message",
			Data:  json.RawMessage(`{"chatId":"g","content":"hi","type":"TEXT","replyToId":"m0"}`),
		})
		require.NoError(t, err)
		send := ev.(*SendMessageRequest)
		in := send.Input("alice")
		assert.Equal(t, "alice", in.SenderID)
		assert.Equal(t, "m0", in.ReplyToID)
	})

	t.Run("mark:read requires messageId", func(t *testing.T) {
		_, err := DecodeClientEvent(WSRequest{Event: "mark:read", Data: json.RawMessage(`{"chatId":"g"}`)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("bad type", func(t *testing.T) {
		_, err := DecodeClientEvent(WSRequest{Event: "send:message", Data: json.RawMessage(`{"chatId":"g","content":"x","type":"GIF"}`)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := DecodeClientEvent(WSRequest{Event: "call:start", Data: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing data", func(t *testing.T) {
		_, err := DecodeClientEvent(WSRequest{Event: "typing:start"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestErrorCode(t *testing.T) {
	wrapped := errors.Join(errors.New("mongo down"), ErrStorage)
	assert.Equal(t, "internal_error", ErrorCode(wrapped))
	assert.Equal(t, "operation failed, please retry", PublicMessage(wrapped))
	assert.Equal(t, "not_authorized", ErrorCode(ErrNotAuthorized))
	assert.Equal(t, 403, StatusCode(ErrNotOwner))
	assert.Equal(t, 404, StatusCode(ErrNotFound))
	assert.Equal(t, 409, StatusCode(ErrAlreadyDeleted))

	ev := NewErrorEvent("send:message", "7", ErrNotAuthorized)
	assert.Equal(t, EventError, ev.Event)
	payload := ev.Data.(ErrorPayload)
	assert.Equal(t, "not_authorized", payload.Code)
	assert.Equal(t, "7", payload.AckID)
}

func TestRooms(t *testing.T) {
	assert.Equal(t, "chat:g", ChatRoom("g"))
	assert.Equal(t, "user:alice", UserRoom("alice"))

	c := &Chat{Type: ChatTypePrivate, Name: "ignored", MemberIDs: []string{"a", "b"}}
	assert.True(t, c.HasMember("a"))
	assert.False(t, c.HasMember("z"))
	assert.Equal(t, "", c.DisplayName())
}
