package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat_realtime_service/internal/member/domain"
	"chat_realtime_service/internal/member/repository"
	"chat_realtime_service/pkg/database"
	"chat_realtime_service/pkg/logger"
	token "chat_realtime_service/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemberUseCase 這裡封裝了對外提供的應用服務
type MemberUseCase interface {
	Register(ctx context.Context, email, username, password string) (*domain.Member, error)
	FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error)
	Login(ctx context.Context, email, password string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, memberID, refreshToken string) error
	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
	Presence(ctx context.Context, userID string) (domain.PresenceSnapshot, error)
	UpdateProfile(ctx context.Context, memberID string, patch domain.ProfilePatch) (*domain.Member, error)
	ChangePassword(ctx context.Context, memberID, current, next string) error
	Search(ctx context.Context, requesterID, query string) ([]domain.Member, error)
	Members(ctx context.Context, memberIDs []string) ([]domain.Member, error)
}

// SearchLimit max results of a member search
const SearchLimit = 20

type memberUseCase struct {
	memberRepo   repository.MemberRepository
	presenceTTL  time.Duration
	redisRepo    database.RedisRepository[domain.PresenceSnapshot]
	refreshRepo  database.RedisRepository[domain.RefreshSessions]
	hashPassword func(string) (string, error)
	now          func() time.Time
}

// NewMemberUseCase 建立一個新的 MemberUseCase
// refreshRepo nil disables refresh tokens, login then returns the access token only.
func NewMemberUseCase(memberRepo repository.MemberRepository,
	presenceTTL time.Duration,
	redisRepo database.RedisRepository[domain.PresenceSnapshot],
	refreshRepo database.RedisRepository[domain.RefreshSessions],
	hashPassword func(string) (string, error),
) MemberUseCase {
	return &memberUseCase{
		memberRepo:   memberRepo,
		presenceTTL:  presenceTTL,
		redisRepo:    redisRepo,
		refreshRepo:  refreshRepo,
		hashPassword: hashPassword,
		now:          time.Now,
	}
}

// Register
func (m *memberUseCase) Register(ctx context.Context, email, username, password string) (*domain.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// 檢查 email 是否已存在
	_, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{Email: &email})
	if err == nil {
		return nil, domain.ErrEmailExists
	}
	if !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, err
	}

	pw, err := m.hashPassword(password)
	if err != nil {
		return nil, err
	}

	if username == "" {
		username = strings.Split(email, "@")[0]
	}

	// 建立新使用者
	member := &domain.Member{
		MemberID: uuid.New().String(),
		Email:    email,
		Username: username,
		Password: pw,
	}
	if err := m.memberRepo.CreateUser(ctx, member); err != nil {
		return nil, err
	}

	logger.Log.Info("member registered", zap.String("memberID", member.MemberID))
	return member, nil
}

// FindMember 用條件來尋找使用者
func (m *memberUseCase) FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error) {
	return m.memberRepo.FindByMember(ctx, param)
}

// Login returns a token pair, online status is driven by websocket connections not by login
func (m *memberUseCase) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{Email: &email})
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, err
	}

	if !member.IsActive() {
		return nil, domain.ErrInvalidCredential
	}
	if err = member.IsPasswordMatch(password); err != nil {
		logger.Log.Debug("password can't match", zap.String("memberID", member.MemberID))
		return nil, domain.ErrInvalidCredential
	}

	return m.issueTokens(ctx, member, nil)
}

// Refresh single use: the presented token is consumed and a new pair issued
// Presenting an unknown token of a member revokes every refresh token of that member.
func (m *memberUseCase) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if m.refreshRepo == nil {
		return nil, domain.ErrInvalidToken
	}
	claims, err := token.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	memberID := claims.Subject

	sessions, err := m.loadSessions(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if _, ok := sessions.Tokens[claims.ID]; !ok {
		logger.Log.Warn("refresh token reuse, revoking all sessions", zap.String("memberID", memberID))
		if err := m.refreshRepo.Del(ctx, memberID); err != nil {
			logger.Log.Error("revoke refresh sessions", zap.String("memberID", memberID), zap.Error(err))
		}
		return nil, domain.ErrInvalidToken
	}
	delete(sessions.Tokens, claims.ID)

	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{MemberID: &memberID})
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if !member.IsActive() {
		_ = m.refreshRepo.Del(ctx, memberID)
		return nil, domain.ErrInvalidToken
	}
	return m.issueTokens(ctx, member, sessions)
}

// Logout revoke one refresh token of the member, unknown tokens are ignored
// Presence is left to the websocket connections.
func (m *memberUseCase) Logout(ctx context.Context, memberID, refreshToken string) error {
	if m.refreshRepo == nil || refreshToken == "" {
		return nil
	}
	claims, err := token.ParseRefreshToken(refreshToken)
	if err != nil || claims.Subject != memberID {
		return nil
	}

	sessions, err := m.loadSessions(ctx, memberID)
	if err != nil {
		return err
	}
	if _, ok := sessions.Tokens[claims.ID]; !ok {
		return nil
	}
	delete(sessions.Tokens, claims.ID)
	if len(sessions.Tokens) == 0 {
		return m.refreshRepo.Del(ctx, memberID)
	}
	return m.refreshRepo.Set(ctx, memberID, *sessions, token.RefreshTTL())
}

// issueTokens access jwt plus a refresh token recorded in sessions
func (m *memberUseCase) issueTokens(ctx context.Context, member *domain.Member, sessions *domain.RefreshSessions) (*domain.TokenPair, error) {
	access, err := token.GenerateJWTWrapper(member.MemberID, member.Username, string(token.RoleMember))
	if err != nil {
		return nil, err
	}
	pair := &domain.TokenPair{AccessToken: access}
	if m.refreshRepo == nil {
		return pair, nil
	}

	if sessions == nil {
		if sessions, err = m.loadSessions(ctx, member.MemberID); err != nil {
			return nil, err
		}
	}
	tokenID := uuid.New().String()
	refresh, exp, err := token.GenerateRefreshTokenWrapper(member.MemberID, tokenID)
	if err != nil {
		return nil, err
	}
	sessions.Tokens[tokenID] = exp
	sessions.Prune(m.now())
	if err := m.refreshRepo.Set(ctx, member.MemberID, *sessions, token.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	pair.RefreshToken = refresh
	return pair, nil
}

func (m *memberUseCase) loadSessions(ctx context.Context, memberID string) (*domain.RefreshSessions, error) {
	sessions, err := m.refreshRepo.Get(ctx, memberID)
	if err != nil && !errors.Is(err, database.ErrRedisNil) {
		return nil, fmt.Errorf("load refresh sessions: %w", err)
	}
	sessions.Prune(m.now())
	return &sessions, nil
}

// UpdateProfile display name, bio or avatar of the member
func (m *memberUseCase) UpdateProfile(ctx context.Context, memberID string, patch domain.ProfilePatch) (*domain.Member, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidProfile)
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: display name is empty", domain.ErrInvalidProfile)
		}
		patch.DisplayName = &name
	}
	return m.memberRepo.UpdateProfile(ctx, memberID, patch)
}

// ChangePassword verify the current password, then store the new hash
func (m *memberUseCase) ChangePassword(ctx context.Context, memberID, current, next string) error {
	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{MemberID: &memberID})
	if err != nil {
		return err
	}
	if err := member.IsPasswordMatch(current); err != nil {
		return domain.ErrWrongPassword
	}
	hashed, err := m.hashPassword(next)
	if err != nil {
		return err
	}
	if err := m.memberRepo.UpdatePassword(ctx, memberID, hashed); err != nil {
		return err
	}
	logger.Log.Info("member password changed", zap.String("memberID", memberID))
	return nil
}

// Search other active members by username or display name
func (m *memberUseCase) Search(ctx context.Context, requesterID, query string) ([]domain.Member, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Member{}, nil
	}
	return m.memberRepo.SearchMembers(ctx, query, requesterID, SearchLimit)
}

// Members batch lookup, unknown ids are skipped
func (m *memberUseCase) Members(ctx context.Context, memberIDs []string) ([]domain.Member, error) {
	return m.memberRepo.FindByMemberIDs(ctx, memberIDs)
}

// SetUserOnline persist presence, then refresh the cached snapshot
func (m *memberUseCase) SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	status := domain.MemberStatusOffLine
	var lastSeen *time.Time
	if online {
		status = domain.MemberStatusOnLine
	} else {
		t := at.UTC()
		lastSeen = &t
	}

	if err := m.memberRepo.SetPresence(ctx, userID, status, lastSeen); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}

	if m.redisRepo == nil {
		return nil
	}
	snapshot := domain.PresenceSnapshot{UserID: userID, IsOnline: online, LastSeenAt: at.UTC()}
	if err := m.redisRepo.Set(ctx, userID, snapshot, m.presenceTTL); err != nil {
		logger.Log.Warn("presence cache write failed", zap.String("userID", userID), zap.Error(err))
	}
	return nil
}

// Presence cached snapshot, falls back to postgres on a miss
func (m *memberUseCase) Presence(ctx context.Context, userID string) (domain.PresenceSnapshot, error) {
	if m.redisRepo != nil {
		if snap, err := m.redisRepo.Get(ctx, userID); err == nil {
			return snap, nil
		} else if !errors.Is(err, database.ErrRedisNil) {
			logger.Log.Warn("presence cache read failed", zap.String("userID", userID), zap.Error(err))
		}
	}

	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{MemberID: &userID})
	if err != nil {
		return domain.PresenceSnapshot{}, err
	}
	snap := domain.PresenceSnapshot{
		UserID:   member.MemberID,
		IsOnline: member.Status == domain.MemberStatusOnLine,
	}
	if member.LastSeenAt != nil {
		snap.LastSeenAt = member.LastSeenAt.UTC()
	}
	return snap, nil
}
