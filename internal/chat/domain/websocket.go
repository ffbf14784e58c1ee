package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Action client to server event name
type Action string

const (
	// JoinChat websocket action join:chat
	JoinChat Action = "join:chat"
	// LeaveChat websocket action leave:chat
	LeaveChat Action = "leave:chat"
	// SendMessage websocket action send:message
	SendMessage Action = "send:message"
	// TypingStart websocket action typing:start
	TypingStart Action = "typing:start"
	// TypingStop websocket action typing:stop
	TypingStop Action = "typing:stop"
	// MarkRead websocket action mark:read
	MarkRead Action = "mark:read"
)

// Actions every action a client may send
var Actions = []Action{JoinChat, LeaveChat, SendMessage, TypingStart, TypingStop, MarkRead}

// Known action is one of Actions
func (a Action) Known() bool {
	return lo.Contains(Actions, a)
}

var validate = validator.New()

// Identity authenticated user of a connection
type Identity struct {
	UserID   string
	Username string
}

// WSRequest websocket Request
type WSRequest struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// ClientEvent tagged variant of the client to server events
type ClientEvent interface {
	Action() Action
}

// JoinChatRequest join:chat
type JoinChatRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

// LeaveChatRequest leave:chat
type LeaveChatRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

// SendMessageRequest send:message
type SendMessageRequest struct {
	ChatID      string       `json:"chatId" validate:"required"`
	Content     string       `json:"content" validate:"max=5000"`
	Type        MessageType  `json:"type" validate:"omitempty,oneof=TEXT IMAGE FILE AUDIO VIDEO"`
	ReplyToID   string       `json:"replyToId"`
	Attachments []Attachment `json:"attachments" validate:"omitempty,dive"`
}

// TypingStartRequest typing:start
type TypingStartRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

// TypingStopRequest typing:stop
type TypingStopRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

// MarkReadRequest mark:read
type MarkReadRequest struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

// Action implements ClientEvent
func (JoinChatRequest) Action() Action { return JoinChat }

// Action implements ClientEvent
func (LeaveChatRequest) Action() Action { return LeaveChat }

// Action implements ClientEvent
func (SendMessageRequest) Action() Action { return SendMessage }

// Action implements ClientEvent
func (TypingStartRequest) Action() Action { return TypingStart }

// Action implements ClientEvent
func (TypingStopRequest) Action() Action { return TypingStop }

// Action implements ClientEvent
func (MarkReadRequest) Action() Action { return MarkRead }

// Input convert to pipeline input
func (r SendMessageRequest) Input(senderID string) SendMessageInput {
	return SendMessageInput{
		ChatID:      r.ChatID,
		SenderID:    senderID,
		Content:     r.Content,
		Type:        r.Type,
		ReplyToID:   r.ReplyToID,
		Attachments: r.Attachments,
	}
}

// DecodeClientEvent decode and validate one inbound frame
func DecodeClientEvent(req WSRequest) (ClientEvent, error) {
	var ev ClientEvent
	switch Action(req.Event) {
	case JoinChat:
		ev = &JoinChatRequest{}
	case LeaveChat:
		ev = &LeaveChatRequest{}
	case SendMessage:
		ev = &SendMessageRequest{}
	case TypingStart:
		ev = &TypingStartRequest{}
	case TypingStop:
		ev = &TypingStopRequest{}
	case MarkRead:
		ev = &MarkReadRequest{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrValidation, req.Event)
	}

	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: %s requires data", ErrValidation, req.Event)
	}
	if err := json.Unmarshal(req.Data, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Validate run struct validation, wraps failures as ErrValidation
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
