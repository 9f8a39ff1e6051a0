package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

type SuggestionType string

const (
	SuggestionCreateTask    SuggestionType = "create_task"
	SuggestionSaveBookmark  SuggestionType = "save_bookmark"
	SuggestionCreateNote    SuggestionType = "create_note"
	SuggestionStartLearning SuggestionType = "start_learning_path"
)

// MessageSuggestion is an AI-produced proposal attached to a message.
// The generator collaborator creates them alongside the message; this
// service only mediates the pending → accepted/dismissed lifecycle.
// Both end states are terminal.
type MessageSuggestion struct {
	ID        string           `gorm:"primaryKey;type:text" json:"id"`
	MessageID string           `gorm:"index;type:text;not null" json:"messageId"`
	Type      SuggestionType   `gorm:"type:text;not null" json:"type"`
	Payload   datatypes.JSON   `gorm:"type:jsonb;default:'{}'" json:"payload"`
	Status    SuggestionStatus `gorm:"type:text;default:'pending';not null;index" json:"status"`

	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy *string    `gorm:"type:text" json:"resolvedBy,omitempty"`
}

func (s *MessageSuggestion) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// Typed payload variants, decoded at the boundary. The accept payload a
// caller sends back stays opaque; these only validate what the generator
// stored on the suggestion itself.

type TaskSuggestionPayload struct {
	Title   string  `json:"title"`
	Notes   string  `json:"notes,omitempty"`
	DueDate *string `json:"dueDate,omitempty"`
}

type BookmarkSuggestionPayload struct {
	URL    string   `json:"url"`
	Title  string   `json:"title,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type NoteSuggestionPayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

type LearningPathSuggestionPayload struct {
	PathID string `json:"pathId"`
	Step   int    `json:"step,omitempty"`
}

// DecodeSuggestionPayload parses the stored payload into the variant
// matching the suggestion type.
func DecodeSuggestionPayload(t SuggestionType, raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch t {
	case SuggestionCreateTask:
		var p TaskSuggestionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case SuggestionSaveBookmark:
		var p BookmarkSuggestionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case SuggestionCreateNote:
		var p NoteSuggestionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case SuggestionStartLearning:
		var p LearningPathSuggestionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown suggestion type %q", t)
}

// IsValidSuggestionType reports whether the generator sent a type this
// build understands.
func IsValidSuggestionType(t SuggestionType) bool {
	_, err := DecodeSuggestionPayload(t, []byte("{}"))
	return err == nil
}
