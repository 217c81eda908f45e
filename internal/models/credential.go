package models

import "time"

// Credential stores a user's encrypted provider API key. At most one per user.
type Credential struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"size:64;not null;uniqueIndex"`
	Ciphertext string `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
