package session

import (
	"context"
	"time"

	"github.com/samuell19/megazord-ai/internal/models"
	"gorm.io/gorm"
)

// Store adapts the package functions to the conversation orchestrator's
// session and message interfaces.
type Store struct {
	DB *gorm.DB
}

func (s Store) CreateSession(ctx context.Context, agentID, userID string) (*models.Session, error) {
	return Create(s.DB.WithContext(ctx), CreateOpts{AgentID: agentID, UserID: userID})
}

func (s Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return Get(s.DB.WithContext(ctx), id)
}

func (s Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	return Touch(s.DB.WithContext(ctx), id, at)
}

func (s Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	return Count(s.DB.WithContext(ctx), sessionID)
}

func (s Store) ApplyGenerated(ctx context.Context, id, title, description, emoji string) error {
	return ApplyGenerated(s.DB.WithContext(ctx), id, title, description, emoji)
}

func (s Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return Append(s.DB.WithContext(ctx), msg)
}

func (s Store) RecentMessages(ctx context.Context, sessionID string, before, limit int) ([]models.Message, error) {
	return Recent(s.DB.WithContext(ctx), sessionID, before, limit)
}

func (s Store) AnnotateMessage(ctx context.Context, id, reason string) error {
	return Annotate(s.DB.WithContext(ctx), id, reason)
}
