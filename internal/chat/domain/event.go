package domain

import "time"

// EventName server to client event name
type EventName string

const (
	// EventMessageNew message:new
	EventMessageNew EventName = "message:new"
	// EventMessageEdited message:edited
	EventMessageEdited EventName = "message:edited"
	// EventMessageDeleted message:deleted
	EventMessageDeleted EventName = "message:deleted"
	// EventMessageRead message:read
	EventMessageRead EventName = "message:read"
	// EventTypingUpdate typing:update
	EventTypingUpdate EventName = "typing:update"
	// EventUserOnline user:online
	EventUserOnline EventName = "user:online"
	// EventUserOffline user:offline
	EventUserOffline EventName = "user:offline"
	// EventNotificationNew notification:new
	EventNotificationNew EventName = "notification:new"
	// EventAck success acknowledgement of a client event
	EventAck EventName = "ack"
	// EventError error acknowledgement of a client event
	EventError EventName = "error"
)

// Event one frame pushed to connections
type Event struct {
	Event EventName   `json:"event"`
	Data  interface{} `json:"data"`
}

// NewEvent create Event
func NewEvent(name EventName, data interface{}) Event {
	return Event{Event: name, Data: data}
}

// MessagePayload payload of message:new / message:edited
type MessagePayload struct {
	Message *Message `json:"message"`
}

// MessageDeletedPayload payload of message:deleted
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// ReadReceiptPayload payload of message:read
type ReadReceiptPayload struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// TypingPayload payload of typing:update
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// PresencePayload payload of user:online / user:offline
type PresencePayload struct {
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// NotificationPayload payload of notification:new
type NotificationPayload struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	ChatID    string           `json:"chatId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// AckPayload payload of ack
type AckPayload struct {
	Event string      `json:"event"`
	AckID string      `json:"ackId,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorPayload payload of error, sent to the invoking connection only
type ErrorPayload struct {
	Event   string `json:"event"`
	AckID   string `json:"ackId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent build an error acknowledgement from a domain error
func NewErrorEvent(event, ackID string, err error) Event {
	return NewEvent(EventError, ErrorPayload{
		Event:   event,
		AckID:   ackID,
		Code:    ErrorCode(err),
		Message: PublicMessage(err),
	})
}

// JournalEntry event copied to the downstream journal
type JournalEntry struct {
	Event      EventName   `json:"event"`
	ChatID     string      `json:"chatId,omitempty"`
	ActorID    string      `json:"actorId,omitempty"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurredAt"`
}
