package models

import "time"

// Agent is a user's configured model plus settings.
type Agent struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"size:64;not null;index"`
	Name          string `gorm:"size:128;not null"`
	Model         string `gorm:"size:128;not null"`
	SystemPrompt  string `gorm:"type:text"`
	Configuration string `gorm:"type:json"` // free-form JSON object
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Sessions []Session `gorm:"foreignKey:AgentID"`
}
