package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/encrypt"
	"chat_realtime_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ChatUseCase - 用於建立聊天室 (群組或 1對1) 與成員管理
type ChatUseCase struct {
	chatRepo repository.ChatRepository
	registry *hub.Registry
	typing   *hub.Typing
	now      func() time.Time
}

// SearchLimit max results of a group search
const SearchLimit int64 = 20

// NewChatUseCase init chat use case
// registry and typing may be nil when no realtime core is running.
func NewChatUseCase(r repository.ChatRepository, registry *hub.Registry, typing *hub.Typing) *ChatUseCase {
	return &ChatUseCase{
		chatRepo: r,
		registry: registry,
		typing:   typing,
		now:      time.Now,
	}
}

// CreateGroup create group chat, creator is the first member and admin
func (uc *ChatUseCase) CreateGroup(
	ctx context.Context,
	creatorID string,
	name string,
	memberIDs []string,
	joinMode domain.JoinMode,
	password string,
) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", domain.ErrValidation)
	}
	if joinMode == "" {
		joinMode = domain.JoinModeInvite
	}

	var hashed string
	switch joinMode {
	case domain.JoinModeOpen, domain.JoinModeInvite:
	case domain.JoinModePassword:
		if password == "" {
			return nil, fmt.Errorf("%w: password join mode needs a password", domain.ErrValidation)
		}
		h, err := encrypt.HashSecret(password)
		if err != nil {
			return nil, err
		}
		hashed = h
	default:
		return nil, fmt.Errorf("%w: unknown join mode %q", domain.ErrValidation, joinMode)
	}

	now := uc.now().UTC()
	chat := &domain.Chat{
		ID:        uuid.New().String(),
		Type:      domain.ChatTypeGroup,
		Name:      name,
		MemberIDs: lo.Uniq(append([]string{creatorID}, lo.Compact(memberIDs)...)),
		Admins:    []string{creatorID},
		JoinMode:  joinMode,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.chatRepo.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// OpenPrivate find or create the 1對1 chat between two users
func (uc *ChatUseCase) OpenPrivate(ctx context.Context, userID, peerID string) (*domain.Chat, error) {
	if peerID == "" || peerID == userID {
		return nil, fmt.Errorf("%w: private chat needs another user", domain.ErrValidation)
	}

	exist, err := uc.chatRepo.FindPrivateChat(ctx, userID, peerID)
	if err == nil {
		return exist, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := uc.now().UTC()
	chat := &domain.Chat{
		ID:        uuid.New().String(),
		Type:      domain.ChatTypePrivate,
		MemberIDs: []string{userID, peerID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.chatRepo.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// List chats of a user
func (uc *ChatUseCase) List(ctx context.Context, userID string) ([]domain.Chat, error) {
	return uc.chatRepo.ListByMember(ctx, userID)
}

// Join join a group by its join mode
func (uc *ChatUseCase) Join(ctx context.Context, chatID, userID, password string) (*domain.Chat, error) {
	chat, err := uc.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.HasMember(userID) {
		return chat, nil
	}
	if chat.Type != domain.ChatTypeGroup {
		return nil, domain.ErrNotAuthorized
	}

	switch chat.JoinMode {
	case domain.JoinModeOpen:
	case domain.JoinModePassword:
		if password == "" || encrypt.CheckPassword(chat.Password, password) != nil {
			return nil, fmt.Errorf("%w: invalid password", domain.ErrNotAuthorized)
		}
	default:
		// invite only
		return nil, domain.ErrNotAuthorized
	}

	if err := uc.chatRepo.AddMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	chat.MemberIDs = append(chat.MemberIDs, userID)
	return chat, nil
}

// AddMember existing members of an invite group add another user
func (uc *ChatUseCase) AddMember(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := uc.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Type != domain.ChatTypeGroup || !chat.HasMember(actorID) {
		return domain.ErrNotAuthorized
	}
	return uc.chatRepo.AddMember(ctx, chatID, userID)
}

// Get chat visible to a member
func (uc *ChatUseCase) Get(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := uc.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(userID) {
		return nil, domain.ErrNotAuthorized
	}
	return chat, nil
}

// Leave leave a group, private chats cannot be left
func (uc *ChatUseCase) Leave(ctx context.Context, chatID, userID string) error {
	return uc.RemoveMember(ctx, chatID, userID, userID)
}

// RemoveMember actor removes userID from a group
// Members may remove themselves, admins may remove anyone.
func (uc *ChatUseCase) RemoveMember(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := uc.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasMember(actorID) {
		return domain.ErrNotAuthorized
	}
	if chat.Type == domain.ChatTypePrivate {
		return fmt.Errorf("%w: cannot leave a private chat", domain.ErrValidation)
	}
	if actorID != userID && !chat.IsAdmin(actorID) {
		return domain.ErrNotAuthorized
	}
	if !chat.HasMember(userID) {
		return fmt.Errorf("%w: %s is not a member", domain.ErrNotFound, userID)
	}

	if err := uc.chatRepo.RemoveMember(ctx, chatID, userID); err != nil {
		return err
	}
	uc.evict(chatID, userID)
	return nil
}

// evict unsubscribe every live connection of a removed member from the chat room
func (uc *ChatUseCase) evict(chatID, userID string) {
	if uc.registry == nil {
		return
	}
	left := uc.registry.LeaveRoomForUser(userID, domain.ChatRoom(chatID))
	if uc.typing != nil {
		uc.typing.Stop(chatID, domain.Identity{UserID: userID}, "")
	}
	if len(left) > 0 {
		logger.Log.Debug("evicted connections from chat",
			zap.String("chat_id", chatID), zap.String("user_id", userID), zap.Int("connections", len(left)))
	}
}

// UpdateGroup admins change name, description or avatar of a group
func (uc *ChatUseCase) UpdateGroup(ctx context.Context, chatID, actorID string, patch domain.GroupPatch) (*domain.Chat, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: group name is required", domain.ErrValidation)
		}
		patch.Name = &name
	}

	chat, err := uc.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Type != domain.ChatTypeGroup {
		return nil, fmt.Errorf("%w: only groups can be updated", domain.ErrValidation)
	}
	if !chat.IsAdmin(actorID) {
		return nil, domain.ErrNotAuthorized
	}
	return uc.chatRepo.UpdateGroup(ctx, chatID, patch, uc.now().UTC())
}

// Search groups of the user whose name contains query
func (uc *ChatUseCase) Search(ctx context.Context, userID, query string) ([]domain.Chat, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Chat{}, nil
	}
	return uc.chatRepo.SearchGroups(ctx, userID, query, SearchLimit)
}

// ContactIDs users sharing at least one chat with userID
func (uc *ChatUseCase) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	chats, err := uc.chatRepo.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := lo.FlatMap(chats, func(c domain.Chat, _ int) []string { return c.MemberIDs })
	return lo.Without(lo.Uniq(ids), userID), nil
}
