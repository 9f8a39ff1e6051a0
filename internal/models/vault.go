package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VaultItem is a credential-like secret, optionally born from a message
// and shareable into conversations. The secret column holds a sealed
// token (see pkg/secretbox); plaintext never reaches the database.
type VaultItem struct {
	ID      string `gorm:"primaryKey;type:text" json:"id"`
	Label   string `gorm:"type:text;not null" json:"label"`
	OwnerID string `gorm:"index;type:text;not null" json:"ownerId"`

	SecretSealed string `gorm:"type:text;not null" json:"-"`
	Notes        string `gorm:"type:text" json:"notes"`

	SourceMessageID *string `gorm:"index;type:text" json:"sourceMessageId,omitempty"`

	Shared bool `gorm:"default:false" json:"shared"`
	// No column default: a tagged default would swallow explicit false
	// on insert. CreateVaultItem always sets this.
	AllowReveal bool       `json:"allowReveal"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`

	// Most recent share target; per-target rows live in VaultItemShare.
	TargetConversationID *string `gorm:"type:text" json:"targetConversationId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Shares []VaultItemShare `gorm:"foreignKey:VaultItemID" json:"shares,omitempty"`
}

func (v *VaultItem) BeforeCreate(tx *gorm.DB) (err error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return
}

// Expired reports whether the expiry, if set, has passed. Expired items
// fail reveal regardless of AllowReveal.
func (v *VaultItem) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && v.ExpiresAt.Before(now)
}

// VaultItemShare is one grant of an item into a conversation. Unshare
// deletes the row; it cannot claw back plaintext a recipient already
// revealed and copied.
type VaultItemShare struct {
	VaultItemID    string    `gorm:"primaryKey;type:text" json:"vaultItemId"`
	ConversationID string    `gorm:"primaryKey;type:text;index" json:"conversationId"`
	SharedBy       string    `gorm:"type:text;not null" json:"sharedBy"`
	CreatedAt      time.Time `json:"createdAt"`
}
