package models

import (
	"time"
)

// User is a read-mostly mirror of the Trackeep identity service. Rows
// are provisioned by the auth collaborator; messaging only needs enough
// of the profile to render senders and rosters.
type User struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Image     string    `json:"image"`
	TeamID    *string   `gorm:"index" json:"teamId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
