package handlers

import (
	"context"
	"errors"

	"chat_realtime_service/internal/chat/hub"
	memberapp "chat_realtime_service/internal/member/app"
	memberdomain "chat_realtime_service/internal/member/domain"
	"chat_realtime_service/pkg/encrypt"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ContactSource users sharing a chat with a member
type ContactSource interface {
	ContactIDs(ctx context.Context, userID string) ([]string, error)
}

// MemberHandler 处理用户相关的 HTTP 请求
type MemberHandler struct {
	usecase  memberapp.MemberUseCase
	presence *hub.Presence
	contacts ContactSource
}

// NewMemberHandler 创建新的 MemberHandler
func NewMemberHandler(usecase memberapp.MemberUseCase, presence *hub.Presence, contacts ContactSource) *MemberHandler {
	return &MemberHandler{
		usecase:  usecase,
		presence: presence,
		contacts: contacts,
	}
}

// respondMemberError map member errors to status
func respondMemberError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, memberdomain.ErrMemberNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, memberdomain.ErrInvalidCredential), errors.Is(err, memberdomain.ErrInvalidToken):
		status = fiber.StatusUnauthorized
	case errors.Is(err, memberdomain.ErrWrongPassword), errors.Is(err, memberdomain.ErrInvalidProfile),
		errors.Is(err, encrypt.ErrWeakPassword):
		status = fiber.StatusBadRequest
	case errors.Is(err, memberdomain.ErrEmailExists):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		logger.Log.Error("member request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "operation failed, please retry"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// profile public view with live presence from the registry
func (h *MemberHandler) profile(m *memberdomain.Member, withEmail bool) memberdomain.Profile {
	p := m.Profile(withEmail)
	if h.presence != nil {
		p.IsOnline = h.presence.IsOnline(m.MemberID)
	}
	return p
}

func (h *MemberHandler) profiles(members []memberdomain.Member) []memberdomain.Profile {
	return lo.Map(members, func(m memberdomain.Member, _ int) memberdomain.Profile {
		return h.profile(&m, false)
	})
}

// Register 注册新用户
func (h *MemberHandler) Register(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	member, err := h.usecase.Register(c.UserContext(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, memberdomain.ErrEmailExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Log.Warn("register failed", zap.String("email", req.Email), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "register success",
		"userId":   member.MemberID,
		"username": member.Username,
	})
}

// Login 用户登录
func (h *MemberHandler) Login(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	pair, err := h.usecase.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, memberdomain.ErrInvalidCredential) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Log.Error("login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login failed"})
	}

	return c.JSON(fiber.Map{"token": pair.AccessToken, "refreshToken": pair.RefreshToken, "message": "login success"})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh POST /auth/refresh, the presented refresh token is consumed
func (h *MemberHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	pair, err := h.usecase.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(pair)
}

// Logout POST /auth/logout, revoke the given refresh token
func (h *MemberHandler) Logout(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	var req refreshRequest
	_ = c.BodyParser(&req)

	if err := h.usecase.Logout(c.UserContext(), memberID, req.RefreshToken); err != nil {
		return respondMemberError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me GET /auth/me and GET /users/me
func (h *MemberHandler) Me(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	member, err := h.usecase.FindMember(c.UserContext(), &memberdomain.MemberQuery{MemberID: &memberID})
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(h.profile(member, true))
}

// UpdateMe PATCH /users/me
func (h *MemberHandler) UpdateMe(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	var patch memberdomain.ProfilePatch
	if err := parseBody(c, &patch); err != nil {
		return respondError(c, err)
	}

	member, err := h.usecase.UpdateProfile(c.UserContext(), memberID, patch)
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(h.profile(member, true))
}

// ChangePassword POST /users/me/change-password
func (h *MemberHandler) ChangePassword(c *fiber.Ctx) error {
	type request struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required"`
	}
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	var req request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.usecase.ChangePassword(c.UserContext(), memberID, req.CurrentPassword, req.NewPassword); err != nil {
		return respondMemberError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Search GET /users/search?q=
func (h *MemberHandler) Search(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	members, err := h.usecase.Search(c.UserContext(), memberID, c.Query("q"))
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(fiber.Map{"users": h.profiles(members)})
}

// Contacts GET /users/contacts, members sharing at least one chat
func (h *MemberHandler) Contacts(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	ids, err := h.contacts.ContactIDs(c.UserContext(), memberID)
	if err != nil {
		return respondError(c, err)
	}
	members, err := h.usecase.Members(c.UserContext(), ids)
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(fiber.Map{"users": h.profiles(members)})
}

// Profile GET /users/:id
func (h *MemberHandler) Profile(c *fiber.Ctx) error {
	userID := c.Params("id")
	member, err := h.usecase.FindMember(c.UserContext(), &memberdomain.MemberQuery{MemberID: &userID})
	if err != nil {
		return respondMemberError(c, err)
	}
	return c.JSON(h.profile(member, false))
}

// Presence GET /users/:id/presence, live registry first then the stored snapshot
func (h *MemberHandler) Presence(c *fiber.Ctx) error {
	userID := c.Params("id")

	if h.presence != nil && h.presence.IsOnline(userID) {
		return c.JSON(h.presence.Snapshot(userID))
	}

	snap, err := h.usecase.Presence(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, memberdomain.ErrMemberNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Log.Error("presence lookup failed", zap.String("userID", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "presence lookup failed"})
	}
	// 沒有任何連線時一定是離線
	snap.IsOnline = false
	return c.JSON(snap)
}
