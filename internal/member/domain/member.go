package domain

import (
	"errors"
	"time"

	"chat_realtime_service/pkg/encrypt"
)

// MemberStatus 用來表示使用者狀態
type MemberStatus int

// 状态: 0=offline, 1=online, 2=ban ,3=delete
const (
	// MemberStatusOffLine 離線
	MemberStatusOffLine MemberStatus = iota
	// MemberStatusOnLine 在線
	MemberStatusOnLine
	// MemberStatusBan 封鎖
	MemberStatusBan
	// MemberStatusDelete 刪除
	MemberStatusDelete
)

var (
	// ErrEmailExists email already registered
	ErrEmailExists = errors.New("email already exists")
	// ErrMemberNotFound no member found with given criteria
	ErrMemberNotFound = errors.New("no member found with given criteria")
	// ErrInvalidCredential email or password wrong
	ErrInvalidCredential = errors.New("invalid email or password")
	// ErrInvalidToken refresh token unknown, expired or already used
	ErrInvalidToken = errors.New("refresh token revoked or expired")
	// ErrWrongPassword current password does not match on change
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrInvalidProfile profile update rejected
	ErrInvalidProfile = errors.New("invalid profile")
)

// MaxRefreshSessions refresh tokens kept per member, the oldest is dropped first
const MaxRefreshSessions = 10

// Member 用來表示使用者
type Member struct {
	ID          int64
	MemberID    string
	Email       string
	Username    string
	Password    string
	Status      MemberStatus
	LastSeenAt  *time.Time
	DisplayName string
	Bio         string
	AvatarURL   string
	CreatedAt   time.Time
}

// Profile public view of a member, email only for the owner
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Bio         string     `json:"bio,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Profile build the public view, withEmail for the member's own profile
func (m *Member) Profile(withEmail bool) Profile {
	p := Profile{
		ID:          m.MemberID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Bio:         m.Bio,
		AvatarURL:   m.AvatarURL,
		IsOnline:    m.Status == MemberStatusOnLine,
		LastSeenAt:  m.LastSeenAt,
		CreatedAt:   m.CreatedAt,
	}
	if p.DisplayName == "" {
		p.DisplayName = m.Username
	}
	if withEmail {
		p.Email = m.Email
	}
	return p
}

// ProfilePatch nil keeps the current value
type ProfilePatch struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=50"`
	Bio         *string `json:"bio" validate:"omitempty,max=200"`
	AvatarURL   *string `json:"avatarUrl" validate:"omitempty,url"`
}

// Empty no field set
func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.Bio == nil && p.AvatarURL == nil
}

// TokenPair access jwt plus single-use refresh token
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshSessions live refresh token ids of one member and their expiry
type RefreshSessions struct {
	Tokens map[string]time.Time `json:"tokens"`
}

// Prune drop expired ids, then the oldest ones above MaxRefreshSessions
func (s *RefreshSessions) Prune(now time.Time) {
	if s.Tokens == nil {
		s.Tokens = make(map[string]time.Time)
	}
	for id, exp := range s.Tokens {
		if !now.Before(exp) {
			delete(s.Tokens, id)
		}
	}
	for len(s.Tokens) > MaxRefreshSessions {
		var oldest string
		for id, exp := range s.Tokens {
			if oldest == "" || exp.Before(s.Tokens[oldest]) {
				oldest = id
			}
		}
		delete(s.Tokens, oldest)
	}
}

// IsPasswordMatch 密碼驗證
func (m *Member) IsPasswordMatch(inputPwd string) error {
	return encrypt.CheckPassword(m.Password, inputPwd)
}

// IsActive ban / delete members cannot login
func (m *Member) IsActive() bool {
	return m.Status == MemberStatusOffLine || m.Status == MemberStatusOnLine
}

// PresenceSnapshot cached presence of a user
type PresenceSnapshot struct {
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// MemberQuery join conditions are used to query members
type MemberQuery struct {
	ID       *int64  `db:"id"`
	MemberID *string `db:"member_id"`
	Email    *string `db:"email"`
	Username *string `db:"username"`
}
