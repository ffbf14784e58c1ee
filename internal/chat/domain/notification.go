package domain

import (
	"time"
	"unicode/utf8"
)

const (
	bodyPreviewLimit  = 100
	bodyPreviewCut    = 97
	attachmentPreview = "📎 Attachment"
)

// NotificationType definition notification type
type NotificationType string

const (
	// NotificationNewMessage a message was sent to a chat the user belongs to
	NotificationNewMessage NotificationType = "NEW_MESSAGE"
	// NotificationMention user mentioned in a message
	NotificationMention NotificationType = "MENTION"
	// NotificationGroupInvite user added to a group
	NotificationGroupInvite NotificationType = "GROUP_INVITE"
)

// Notification 通知紀錄
type Notification struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string           `gorm:"index;type:varchar(64);not null" json:"userId"`
	Type        NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title       string           `gorm:"type:varchar(255);not null" json:"title"`
	Body        string           `gorm:"type:text" json:"body"`
	ChatID      string           `gorm:"type:varchar(64)" json:"chatId,omitempty"`
	MessageID   string           `gorm:"type:varchar(64)" json:"messageId,omitempty"`
	TriggeredBy string           `gorm:"type:varchar(64)" json:"triggeredBy,omitempty"`
	IsRead      bool             `gorm:"index;default:false" json:"isRead"`
	CreatedAt   time.Time        `gorm:"index" json:"createdAt"`
}

// TableName gorm table name
func (Notification) TableName() string {
	return "notifications"
}

// Payload notification:new payload
func (n *Notification) Payload() NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		ChatID:    n.ChatID,
		CreatedAt: n.CreatedAt,
	}
}

// NotificationDraft shared content of a notification fanned out to many recipients
type NotificationDraft struct {
	Type        NotificationType
	Title       string
	Body        string
	ChatID      string
	MessageID   string
	TriggeredBy string
}

// NewMessageDraft build the notification of a new message
func NewMessageDraft(senderName, chatName string, msg *Message) NotificationDraft {
	title := senderName
	if chatName != "" {
		title = senderName + " in " + chatName
	}
	return NotificationDraft{
		Type:        NotificationNewMessage,
		Title:       title,
		Body:        PreviewBody(msg),
		ChatID:      msg.ChatID,
		MessageID:   msg.ID,
		TriggeredBy: msg.SenderID,
	}
}

// PreviewBody body preview of a message
func PreviewBody(msg *Message) string {
	if msg.Content == "" {
		if len(msg.Attachments) > 0 {
			return attachmentPreview
		}
		return ""
	}
	if utf8.RuneCountInString(msg.Content) <= bodyPreviewLimit {
		return msg.Content
	}
	return string([]rune(msg.Content)[:bodyPreviewCut]) + "…"
}
