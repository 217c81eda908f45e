package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a session. Messages are totally ordered within a
// session by Sequence. Only Error is mutated after creation.
type Message struct {
	ID               string `gorm:"primaryKey;size:36"`
	SessionID        string `gorm:"size:36;not null;uniqueIndex:idx_message_session_seq"`
	Sequence         int    `gorm:"not null;uniqueIndex:idx_message_session_seq"`
	Role             Role   `gorm:"size:16;not null"`
	Content          string `gorm:"type:text;not null"`
	Metadata         string `gorm:"type:json"` // model, finish_reason, token breakdown
	TokensUsed       *int
	ProcessingTimeMs *int64
	Error            *string `gorm:"type:text"`
	ParentMessageID  *string `gorm:"size:36;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Failed reports whether the message carries an error annotation.
func (m *Message) Failed() bool {
	return m.Error != nil && *m.Error != ""
}
