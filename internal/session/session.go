// Package session persists conversation sessions and their ordered
// messages.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/models"
	"gorm.io/gorm"
)

// ListLimit caps the number of sessions returned by the list queries.
const ListLimit = 50

// PlaceholderTitleLayout formats the timestamp in a new session's title.
const PlaceholderTitleLayout = "2006-01-02 15:04:05"

// CreateOpts holds parameters for creating a session.
type CreateOpts struct {
	AgentID string
	UserID  string
	Title   string // defaults to PlaceholderTitle(now)
}

// UpdateOpts holds the user-editable fields. Nil fields are left untouched.
type UpdateOpts struct {
	Title       *string
	Description *string
	Emoji       *string
	Metadata    *string // JSON object
	IsActive    *bool
}

// PlaceholderTitle is the title a session carries until one is generated.
func PlaceholderTitle(now time.Time) string {
	return "New conversation - " + now.Format(PlaceholderTitleLayout)
}

// Create creates a session owned by (AgentID, UserID). The caller is
// responsible for having checked that UserID owns the agent.
func Create(db *gorm.DB, opts CreateOpts) (*models.Session, error) {
	if opts.AgentID == "" || opts.UserID == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "session: agent and user are required")
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = PlaceholderTitle(time.Now())
	}
	s := models.Session{
		ID:       uuid.NewString(),
		AgentID:  opts.AgentID,
		UserID:   opts.UserID,
		Title:    title,
		Emoji:    models.DefaultSessionEmoji,
		Metadata: "{}",
		IsActive: true,
	}
	if err := db.Create(&s).Error; err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return &s, nil
}

// Get retrieves a session by ID.
func Get(db *gorm.DB, id string) (*models.Session, error) {
	var s models.Session
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "session: not found: %s", id)
		}
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	return &s, nil
}

// GetOwned retrieves a session and checks that userID owns it.
func GetOwned(db *gorm.DB, id, userID string) (*models.Session, error) {
	s, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, apperr.New(apperr.KindAccessDenied, "session: %s belongs to another user", id)
	}
	return s, nil
}

// ListByUser returns the user's sessions, most recently active first.
func ListByUser(db *gorm.DB, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := db.Where("user_id = ?", userID).
		Order("last_message_at DESC").Order("created_at DESC").
		Limit(ListLimit).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session: list for %s: %w", userID, err)
	}
	return sessions, nil
}

// ListByAgent returns the user's sessions with one agent, most recently
// active first.
func ListByAgent(db *gorm.DB, agentID, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := db.Where("agent_id = ? AND user_id = ?", agentID, userID).
		Order("last_message_at DESC").Order("created_at DESC").
		Limit(ListLimit).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session: list for agent %s: %w", agentID, err)
	}
	return sessions, nil
}

// Update modifies an owned session and returns the updated row.
func Update(db *gorm.DB, id, userID string, opts UpdateOpts) (*models.Session, error) {
	if _, err := GetOwned(db, id, userID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return nil, apperr.New(apperr.KindMalformedRequest, "session: title must not be empty")
		}
		updates["title"] = title
		// A hand-set title is never overwritten by generation.
		updates["title_generated"] = true
	}
	if opts.Description != nil {
		updates["description"] = *opts.Description
	}
	if opts.Emoji != nil {
		updates["emoji"] = *opts.Emoji
	}
	if opts.Metadata != nil {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(*opts.Metadata), &obj); err != nil || obj == nil {
			return nil, apperr.New(apperr.KindMalformedRequest, "session: metadata must be a JSON object")
		}
		updates["metadata"] = *opts.Metadata
	}
	if opts.IsActive != nil {
		updates["is_active"] = *opts.IsActive
	}

	if len(updates) > 0 {
		if err := db.Model(&models.Session{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("session: update %s: %w", id, err)
		}
	}
	return Get(db, id)
}

// Delete removes an owned session and all of its messages.
func Delete(db *gorm.DB, id, userID string) error {
	if _, err := GetOwned(db, id, userID); err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("session: delete messages of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("session: delete %s: %w", id, err)
		}
		return nil
	})
}

// Touch records activity on a session.
func Touch(db *gorm.DB, id string, at time.Time) error {
	result := db.Model(&models.Session{}).Where("id = ?", id).Update("last_message_at", at)
	if result.Error != nil {
		return fmt.Errorf("session: touch %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "session: not found: %s", id)
	}
	return nil
}

// ApplyGenerated stores generated display metadata and marks the title as
// generated. Empty fields keep their current value. A session whose title is
// already generated or was set by hand is left untouched.
func ApplyGenerated(db *gorm.DB, id, title, description, emoji string) error {
	updates := map[string]interface{}{"title_generated": true}
	if title != "" {
		updates["title"] = title
	}
	if description != "" {
		updates["description"] = description
	}
	if emoji != "" {
		updates["emoji"] = emoji
	}
	result := db.Model(&models.Session{}).
		Where("id = ? AND title_generated = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("session: apply generated metadata to %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := Get(db, id); err != nil {
			return err
		}
	}
	return nil
}
