package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationType string

const (
	ConversationGlobal        ConversationType = "global"
	ConversationTeam          ConversationType = "team"
	ConversationGroup         ConversationType = "group"
	ConversationDM            ConversationType = "dm"
	ConversationSelf          ConversationType = "self"
	ConversationPasswordVault ConversationType = "password_vault"
)

func IsValidConversationType(t ConversationType) bool {
	switch t {
	case ConversationGlobal, ConversationTeam, ConversationGroup,
		ConversationDM, ConversationSelf, ConversationPasswordVault:
		return true
	}
	return false
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
	RoleViewer MemberRole = "viewer"
)

// Conversation is a named channel scoping messages and membership.
// LastMessageAt drives list ordering and only moves forward.
type Conversation struct {
	ID        string           `gorm:"primaryKey;type:text" json:"id"`
	Type      ConversationType `gorm:"type:text;not null;index" json:"type"`
	Name      string           `gorm:"type:text;not null" json:"name"`
	Topic     *string          `gorm:"type:text" json:"topic,omitempty"`
	TeamID    *string          `gorm:"index;type:text" json:"teamId,omitempty"`
	CreatedBy string           `gorm:"index;type:text;not null" json:"createdBy"`

	IsDefault  bool `gorm:"default:false" json:"isDefault"`
	IsArchived bool `gorm:"default:false" json:"isArchived"`

	// PairKey dedupes dm conversations: sorted member ids joined with ':'.
	// Unique index equivalent of least/greatest(user1, user2).
	PairKey *string `gorm:"uniqueIndex;type:text" json:"-"`

	LastMessageAt *time.Time `gorm:"index:idx_conversations_last_msg,sort:desc" json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	// Relations
	Members  []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
	Messages []Message            `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// DMPairKey builds the canonical identity of a dm between two users.
func DMPairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ConversationMember is one (conversation, user) membership row.
// Deleting it removes visibility, not history.
type ConversationMember struct {
	ConversationID string     `gorm:"primaryKey;type:text" json:"conversationId"`
	UserID         string     `gorm:"primaryKey;type:text;index" json:"userId"`
	Role           MemberRole `gorm:"type:text;default:'member';not null" json:"role"`

	// LastReadSeq is the read watermark: the highest message sequence the
	// member has read. Advances only forward.
	LastReadSeq int64 `gorm:"default:0" json:"lastReadSeq"`

	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
	IsHidden   bool       `gorm:"default:false" json:"isHidden"`
	JoinedAt   time.Time  `json:"joinedAt"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// CanPost reports whether the role may create messages.
func (m *ConversationMember) CanPost() bool {
	return m.Role != RoleViewer
}

// CanManage reports whether the role may archive or rename.
func (m *ConversationMember) CanManage() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}
