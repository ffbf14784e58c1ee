package domain

import (
	"time"

	"github.com/samber/lo"
)

// CollectionName mongo collection names for the chat context
type CollectionName string

const (
	// ChatCollection chats (private + group)
	ChatCollection CollectionName = "chats"
	// MessageCollection chat messages
	MessageCollection CollectionName = "messages"
	// ReadPositionCollection read position per (chat, user)
	ReadPositionCollection CollectionName = "read_positions"
)

// ChatType definition chat type
type ChatType string

const (
	// ChatTypePrivate 1對1
	ChatTypePrivate ChatType = "PRIVATE"
	// ChatTypeGroup 群組
	ChatTypeGroup ChatType = "GROUP"
)

// JoinMode 決定加入群組條件
type JoinMode string

const (
	// JoinModeOpen allow all
	JoinModeOpen JoinMode = "open"
	// JoinModePassword need password
	JoinModePassword JoinMode = "password"
	// JoinModeInvite only members can add others
	JoinModeInvite JoinMode = "invite"
)

// Chat definition chat
type Chat struct {
	ID          string    `bson:"_id" json:"id"`
	Type        ChatType  `bson:"type" json:"type"`
	Name        string    `bson:"name,omitempty" json:"name,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	AvatarURL   string    `bson:"avatar_url,omitempty" json:"avatarUrl,omitempty"`
	MemberIDs   []string  `bson:"member_ids" json:"memberIds"`
	Admins      []string  `bson:"admins,omitempty" json:"admins,omitempty"`
	JoinMode    JoinMode  `bson:"join_mode,omitempty" json:"joinMode,omitempty"`
	Password    string    `bson:"password,omitempty" json:"-"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}

// GroupPatch fields of a group that admins may change, nil keeps the current value
type GroupPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=300"`
	AvatarURL   *string `json:"avatarUrl" validate:"omitempty,url"`
}

// Empty no field set
func (p GroupPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.AvatarURL == nil
}

// HasMember check user is a member of the chat
func (c *Chat) HasMember(userID string) bool {
	return lo.Contains(c.MemberIDs, userID)
}

// IsAdmin creator or promoted admin of a group
func (c *Chat) IsAdmin(userID string) bool {
	return lo.Contains(c.Admins, userID)
}

// DisplayName name used in notification titles, empty for private chats
func (c *Chat) DisplayName() string {
	if c.Type == ChatTypePrivate {
		return ""
	}
	return c.Name
}

// ChatRoom room id of a chat
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

// UserRoom personal room id of a user, every connection joins it on register
func UserRoom(userID string) string {
	return "user:" + userID
}
