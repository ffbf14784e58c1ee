package handlers

import (
	"strconv"
	"time"

	"chat_realtime_service/internal/chat/app"
	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHandler 处理聊天相关的 HTTP 请求
type ChatHandler struct {
	chatUC       *app.ChatUseCase
	messageUC    *app.MessageUseCase
	readUC       *app.ReadReceiptUseCase
	notifyUC     *app.NotificationUseCase
	attachments  repository.AttachmentStore
	maxFileBytes int64
}

// NewChatHandler 创建新的 ChatHandler
func NewChatHandler(
	chatUC *app.ChatUseCase,
	messageUC *app.MessageUseCase,
	readUC *app.ReadReceiptUseCase,
	notifyUC *app.NotificationUseCase,
	attachments repository.AttachmentStore,
	maxFileBytes int64,
) *ChatHandler {
	return &ChatHandler{
		chatUC:       chatUC,
		messageUC:    messageUC,
		readUC:       readUC,
		notifyUC:     notifyUC,
		attachments:  attachments,
		maxFileBytes: maxFileBytes,
	}
}

// respondError map domain errors to status + wire code
func respondError(c *fiber.Ctx, err error) error {
	status := domain.StatusCode(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"code":  domain.ErrorCode(err),
		"error": domain.PublicMessage(err),
	})
}

func identity(c *fiber.Ctx) (domain.Identity, error) {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return domain.Identity{}, domain.ErrAuth
	}
	return domain.Identity{UserID: memberID, Username: middlewares.Username(c)}, nil
}

func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return domain.ErrValidation
	}
	return domain.Validate(req)
}

// parseBefore before query, RFC3339 or unix milliseconds
func parseBefore(c *fiber.Ctx) (time.Time, error) {
	raw := c.Query("before")
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, domain.ErrValidation
	}
	return t, nil
}

// OpenPrivate POST /chats/private
func (h *ChatHandler) OpenPrivate(c *fiber.Ctx) error {
	type request struct {
		UserID string `json:"userId" validate:"required"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	chat, err := h.chatUC.OpenPrivate(c.UserContext(), id.UserID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(chat)
}

// CreateGroup POST /chats/group
func (h *ChatHandler) CreateGroup(c *fiber.Ctx) error {
	type request struct {
		Name      string          `json:"name" validate:"required,max=100"`
		MemberIDs []string        `json:"memberIds"`
		JoinMode  domain.JoinMode `json:"joinMode" validate:"omitempty,oneof=open password invite"`
		Password  string          `json:"password"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	chat, err := h.chatUC.CreateGroup(c.UserContext(), id.UserID, req.Name, req.MemberIDs, req.JoinMode, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

// ListChats GET /chats
func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	chats, err := h.chatUC.List(c.UserContext(), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats})
}

// JoinChat POST /chats/:chatId/join
func (h *ChatHandler) JoinChat(c *fiber.Ctx) error {
	type request struct {
		Password string `json:"password"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	// body is optional for open groups
	_ = c.BodyParser(&req)

	chat, err := h.chatUC.Join(c.UserContext(), c.Params("chatId"), id.UserID, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(chat)
}

// LeaveChat POST /chats/:chatId/leave
func (h *ChatHandler) LeaveChat(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.chatUC.Leave(c.UserContext(), c.Params("chatId"), id.UserID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddMember POST /chats/:chatId/members
func (h *ChatHandler) AddMember(c *fiber.Ctx) error {
	type request struct {
		UserID string `json:"userId" validate:"required"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.chatUC.AddMember(c.UserContext(), c.Params("chatId"), id.UserID, req.UserID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetChat GET /chats/:chatId
func (h *ChatHandler) GetChat(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	chat, err := h.chatUC.Get(c.UserContext(), c.Params("chatId"), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(chat)
}

// UpdateGroup PATCH /chats/:chatId, admins only
func (h *ChatHandler) UpdateGroup(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var patch domain.GroupPatch
	if err := parseBody(c, &patch); err != nil {
		return respondError(c, err)
	}

	chat, err := h.chatUC.UpdateGroup(c.UserContext(), c.Params("chatId"), id.UserID, patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(chat)
}

// RemoveMember DELETE /chats/:chatId/members/:userId
func (h *ChatHandler) RemoveMember(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.chatUC.RemoveMember(c.UserContext(), c.Params("chatId"), id.UserID, c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SearchChats GET /chats/search?q=, groups of the caller matching by name
func (h *ChatHandler) SearchChats(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	chats, err := h.chatUC.Search(c.UserContext(), id.UserID, c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats})
}

// History GET /chats/:chatId/messages?before=&limit=
func (h *ChatHandler) History(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	before, err := parseBefore(c)
	if err != nil {
		return respondError(c, err)
	}
	limit := int64(c.QueryInt("limit", int(app.DefaultHistoryLimit)))

	msgs, err := h.messageUC.History(c.UserContext(), c.Params("chatId"), id.UserID, before, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// SendMessage POST /chats/:chatId/messages
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req domain.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, domain.ErrValidation)
	}
	req.ChatID = c.Params("chatId")
	if err := domain.Validate(&req); err != nil {
		return respondError(c, err)
	}

	msg, err := h.messageUC.Send(c.UserContext(), id, req.Input(id.UserID))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditMessage PATCH /messages/:id
func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	type request struct {
		Content string `json:"content" validate:"required"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	msg, err := h.messageUC.Edit(c.UserContext(), id.UserID, c.Params("id"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage DELETE /messages/:id
func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if _, err := h.messageUC.Delete(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkRead POST /chats/:chatId/messages/read
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	type request struct {
		MessageID string `json:"messageId" validate:"required"`
	}
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	receipt, advanced, err := h.readUC.MarkRead(c.UserContext(), c.Params("chatId"), id.UserID, req.MessageID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"receipt": receipt, "advanced": advanced})
}

// UnreadCount GET /chats/:chatId/messages/unread-count
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.messageUC.UnreadCount(c.UserContext(), c.Params("chatId"), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// ListNotifications GET /notifications?before=&limit=
func (h *ChatHandler) ListNotifications(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	before, err := parseBefore(c)
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.notifyUC.List(c.UserContext(), id.UserID, before, c.QueryInt("limit", app.DefaultNotificationLimit))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": list})
}

// NotificationUnreadCount GET /notifications/unread-count
func (h *ChatHandler) NotificationUnreadCount(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.notifyUC.UnreadCount(c.UserContext(), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// MarkAllNotificationsRead PATCH /notifications/read-all
func (h *ChatHandler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.notifyUC.MarkAllRead(c.UserContext(), id.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

// MarkNotificationRead PATCH /notifications/:id/read
func (h *ChatHandler) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.notifyUC.MarkRead(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteNotification DELETE /notifications/:id
func (h *ChatHandler) DeleteNotification(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.notifyUC.Delete(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadAttachments POST /attachments (multipart, field "files")
func (h *ChatHandler) UploadAttachments(c *fiber.Ctx) error {
	id, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	if h.attachments == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "attachment storage disabled"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, domain.ErrValidation)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return respondError(c, domain.ErrValidation)
	}

	out := make([]domain.Attachment, 0, len(files))
	for _, fh := range files {
		if h.maxFileBytes > 0 && fh.Size > h.maxFileBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"code":  domain.ErrorCode(domain.ErrValidation),
				"error": "file too large: " + fh.Filename,
			})
		}
		f, err := fh.Open()
		if err != nil {
			return respondError(c, domain.ErrValidation)
		}
		att, err := h.attachments.Upload(c.UserContext(), id.UserID, fh.Filename, fh.Header.Get(fiber.HeaderContentType), fh.Size, f)
		f.Close()
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, *att)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attachments": out})
}
