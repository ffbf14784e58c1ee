package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// MaxContentLength max runes of a message content
const MaxContentLength = 5000

// MessageType definition message type
type MessageType string

const (
	// MessageTypeText plain text
	MessageTypeText MessageType = "TEXT"
	// MessageTypeImage image attachment
	MessageTypeImage MessageType = "IMAGE"
	// MessageTypeFile file attachment
	MessageTypeFile MessageType = "FILE"
	// MessageTypeAudio audio attachment
	MessageTypeAudio MessageType = "AUDIO"
	// MessageTypeVideo video attachment
	MessageTypeVideo MessageType = "VIDEO"
)

var messageTypes = []MessageType{
	MessageTypeText,
	MessageTypeImage,
	MessageTypeFile,
	MessageTypeAudio,
	MessageTypeVideo,
}

// Attachment file stored in object storage
type Attachment struct {
	ID        string `bson:"id" json:"id"`
	Filename  string `bson:"filename" json:"filename"`
	ObjectKey string `bson:"object_key" json:"objectKey"`
	MimeType  string `bson:"mime_type" json:"mimeType"`
	Size      int64  `bson:"size" json:"size"`
	URL       string `bson:"url,omitempty" json:"url,omitempty"`
}

// Message 表示一則聊天訊息
type Message struct {
	ID          string       `bson:"_id" json:"id"`
	ChatID      string       `bson:"chat_id" json:"chatId"`
	SenderID    string       `bson:"sender_id" json:"senderId"`
	Content     string       `bson:"content" json:"content"`
	Type        MessageType  `bson:"type" json:"type"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments"`
	ReplyToID   string       `bson:"reply_to_id,omitempty" json:"replyToId,omitempty"`
	IsEdited    bool         `bson:"is_edited" json:"isEdited"`
	IsDeleted   bool         `bson:"is_deleted" json:"isDeleted"`
	CreatedAt   time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updatedAt"`
}

// SendMessageInput input of the fan-out pipeline
type SendMessageInput struct {
	ChatID      string
	SenderID    string
	Content     string
	Type        MessageType
	ReplyToID   string
	Attachments []Attachment
}

// Normalize validate input and fill defaults
// TEXT messages that carry attachments are stored as FILE.
func (in *SendMessageInput) Normalize() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.ChatID == "" || in.SenderID == "" {
		return fmt.Errorf("%w: chatId and senderId are required", ErrValidation)
	}
	if in.Content == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: message must have content or attachments", ErrValidation)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	if in.Type == "" {
		in.Type = MessageTypeText
	}
	if !lo.Contains(messageTypes, in.Type) {
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, in.Type)
	}
	if in.Type == MessageTypeText && len(in.Attachments) > 0 {
		in.Type = MessageTypeFile
	}
	return nil
}

// ValidateEditContent check edited content
func ValidateEditContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return content, nil
}

// ReadPosition 每個 (chat, user) 最後已讀的位置
type ReadPosition struct {
	ChatID     string    `bson:"chat_id" json:"chatId"`
	UserID     string    `bson:"user_id" json:"userId"`
	LastReadAt time.Time `bson:"last_read_at" json:"lastReadAt"`
}

// ReadPositionKey mongo _id of a read position
func ReadPositionKey(chatID, userID string) string {
	return chatID + ":" + userID
}
