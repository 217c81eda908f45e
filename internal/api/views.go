package api

import (
	"encoding/json"
	"time"

	"github.com/samuell19/megazord-ai/internal/models"
)

type agentView struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	SystemPrompt  string          `json:"systemPrompt,omitempty"`
	Configuration json.RawMessage `json:"configuration"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type sessionView struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agentId"`
	UserID         string          `json:"userId"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Emoji          string          `json:"emoji"`
	Metadata       json.RawMessage `json:"metadata"`
	TitleGenerated bool            `json:"titleGenerated"`
	IsActive       bool            `json:"isActive"`
	LastMessageAt  *time.Time      `json:"lastMessageAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type messageView struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"sessionId"`
	Sequence         int             `json:"sequence"`
	Role             models.Role     `json:"role"`
	Content          string          `json:"content"`
	Metadata         json.RawMessage `json:"metadata"`
	TokensUsed       *int            `json:"tokensUsed,omitempty"`
	ProcessingTimeMs *int64          `json:"processingTimeMs,omitempty"`
	Error            *string         `json:"error,omitempty"`
	ParentMessageID  *string         `json:"parentMessageId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// rawObject returns s as raw JSON, or {} when s is empty or not valid JSON.
func rawObject(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

func newAgentView(a *models.Agent) agentView {
	return agentView{
		ID:            a.ID,
		UserID:        a.UserID,
		Name:          a.Name,
		Model:         a.Model,
		SystemPrompt:  a.SystemPrompt,
		Configuration: rawObject(a.Configuration),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func newSessionView(s *models.Session) sessionView {
	return sessionView{
		ID:             s.ID,
		AgentID:        s.AgentID,
		UserID:         s.UserID,
		Title:          s.Title,
		Description:    s.Description,
		Emoji:          s.Emoji,
		Metadata:       rawObject(s.Metadata),
		TitleGenerated: s.TitleGenerated,
		IsActive:       s.IsActive,
		LastMessageAt:  s.LastMessageAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func newMessageView(m *models.Message) messageView {
	return messageView{
		ID:               m.ID,
		SessionID:        m.SessionID,
		Sequence:         m.Sequence,
		Role:             m.Role,
		Content:          m.Content,
		Metadata:         rawObject(m.Metadata),
		TokensUsed:       m.TokensUsed,
		ProcessingTimeMs: m.ProcessingTimeMs,
		Error:            m.Error,
		ParentMessageID:  m.ParentMessageID,
		CreatedAt:        m.CreatedAt,
	}
}
