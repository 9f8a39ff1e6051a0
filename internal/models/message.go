package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SensitivePlaceholder is what every read path returns instead of a
// sensitive body. Plaintext only leaves the server via reveal-sensitive.
const SensitivePlaceholder = "•••••• (sensitive)"

// DeletedPlaceholder renders soft-deleted messages as tombstones.
const DeletedPlaceholder = "message deleted"

type Message struct {
	ID string `gorm:"primaryKey;type:text" json:"id"`

	// Seq is a per-table monotonic sequence used for cursor pagination
	// and read watermarks. Assigned in BeforeCreate.
	Seq int64 `gorm:"uniqueIndex;not null" json:"seq"`

	ConversationID string `gorm:"index;type:text;not null" json:"conversationId"`
	SenderID       string `gorm:"index;type:text;not null" json:"senderId"`

	Body        string `gorm:"type:text;not null" json:"body"`
	IsSensitive bool   `gorm:"default:false" json:"isSensitive"`

	// Soft markers. DeletedAt is a plain nullable column, not
	// gorm.DeletedAt: tombstones must stay addressable for reactions and
	// threads, so reads may never filter them out implicitly.
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`

	// Relations
	Sender      User                `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	References  []MessageReference  `gorm:"foreignKey:MessageID" json:"references,omitempty"`
	Reactions   []MessageReaction   `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
	Suggestions []MessageSuggestion `gorm:"foreignKey:MessageID" json:"suggestions,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Seq == 0 {
		// Two read-committed transactions can read the same MAX and
		// collide on the seq unique index, so assignment is serialized
		// with a transaction-scoped advisory lock. sqlite's writer lock
		// already serializes inserts.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext('messages.seq'))").Error; err != nil {
				return err
			}
		}
		var next int64
		if err := tx.Model(&Message{}).Select("COALESCE(MAX(seq), 0) + 1").Scan(&next).Error; err != nil {
			return err
		}
		m.Seq = next
	}
	return
}

// Redact rewrites the body for general read paths: tombstone for deleted
// messages, placeholder for sensitive ones. Stored state is untouched.
func (m *Message) Redact() {
	if m.DeletedAt != nil {
		m.Body = DeletedPlaceholder
		return
	}
	if m.IsSensitive {
		m.Body = SensitivePlaceholder
	}
}

type AttachmentKind string

const (
	AttachmentFile  AttachmentKind = "file"
	AttachmentImage AttachmentKind = "image"
	AttachmentLink  AttachmentKind = "link"
)

// MessageAttachment associates an opaque file descriptor or URL with a
// message. Immutable once created; file bytes live with the upload
// collaborator, never here.
type MessageAttachment struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	MessageID string         `gorm:"index;type:text;not null" json:"messageId"`
	Kind      AttachmentKind `gorm:"type:text;not null" json:"kind"`

	// Opaque descriptor from the upload endpoint
	FileID       *string `gorm:"type:text" json:"fileId,omitempty"`
	OriginalName *string `gorm:"type:text" json:"originalName,omitempty"`
	MimeType     *string `gorm:"type:text" json:"mimeType,omitempty"`

	URL     *string        `gorm:"type:text" json:"url,omitempty"`
	Preview datatypes.JSON `gorm:"type:jsonb" json:"preview,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (a *MessageAttachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// MessageReference is a typed pointer from a message to another Trackeep
// entity (task, bookmark, note, file, learning path). Append-only.
type MessageReference struct {
	ID         string `gorm:"primaryKey;type:text" json:"id"`
	MessageID  string `gorm:"index;type:text;not null" json:"messageId"`
	EntityType string `gorm:"type:text;not null" json:"entityType"`
	EntityID   string `gorm:"type:text;not null" json:"entityId"`
	DeepLink   string `gorm:"type:text" json:"deepLink"`

	CreatedAt time.Time `json:"createdAt"`
}

func (r *MessageReference) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// MessageReaction stores emoji reactions on messages. Presence/absence
// model: one row per (message, user, emoji), never a counter.
type MessageReaction struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	MessageID string    `gorm:"uniqueIndex:idx_unique_reaction;type:text;not null" json:"messageId"`
	UserID    string    `gorm:"uniqueIndex:idx_unique_reaction;type:text;not null" json:"userId"`
	Emoji     string    `gorm:"uniqueIndex:idx_unique_reaction;type:text;not null" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (r *MessageReaction) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// Allowed emojis for reactions (curated list for consistency)
var AllowedReactionEmojis = []string{
	"👍", "👎", "❤️", "😂", "😮", "😢", "🔥", "🎉", "🚀", "👀",
}

// IsValidReactionEmoji checks if an emoji is in the allowed list
func IsValidReactionEmoji(emoji string) bool {
	for _, e := range AllowedReactionEmojis {
		if e == emoji {
			return true
		}
	}
	return false
}
