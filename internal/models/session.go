package models

import "time"

// DefaultSessionEmoji is shown until a generated emoji replaces it.
const DefaultSessionEmoji = "💬"

// Session is one conversation thread between a user and one of their agents.
// UserID always equals the owning agent's UserID.
type Session struct {
	ID             string     `gorm:"primaryKey;size:36"`
	AgentID        string     `gorm:"size:36;not null;index:idx_session_agent_user"`
	UserID         string     `gorm:"size:64;not null;index:idx_session_agent_user;index"`
	Title          string     `gorm:"size:255"`
	Description    string     `gorm:"type:text"`
	Emoji          string     `gorm:"size:16"`
	Metadata       string     `gorm:"type:json"`
	TitleGenerated bool       `gorm:"default:false"`
	IsActive       bool       `gorm:"default:true"`
	LastMessageAt  *time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Messages []Message `gorm:"foreignKey:SessionID"`
}
