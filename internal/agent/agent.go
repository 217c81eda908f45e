// Package agent provides CRUD over a user's configured agents.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/models"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a new agent.
type CreateOpts struct {
	UserID        string
	Name          string
	Model         string // provider model identifier, e.g. "openai/gpt-4o-mini"
	SystemPrompt  string
	Configuration string // JSON object; empty means {}
}

// UpdateOpts holds the fields to change. Nil fields are left untouched.
type UpdateOpts struct {
	Name          *string
	Model         *string
	SystemPrompt  *string
	Configuration *string
}

// Create creates a new agent owned by opts.UserID.
func Create(db *gorm.DB, opts CreateOpts) (*models.Agent, error) {
	if opts.UserID == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "agent: user is required")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "agent: name is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "agent: model is required")
	}
	conf, err := normalizeConfiguration(opts.Configuration)
	if err != nil {
		return nil, err
	}

	a := models.Agent{
		ID:            uuid.NewString(),
		UserID:        opts.UserID,
		Name:          name,
		Model:         model,
		SystemPrompt:  opts.SystemPrompt,
		Configuration: conf,
	}
	if err := db.Create(&a).Error; err != nil {
		return nil, fmt.Errorf("agent: create: %w", err)
	}
	return &a, nil
}

// Get retrieves an agent by ID.
func Get(db *gorm.DB, id string) (*models.Agent, error) {
	var a models.Agent
	if err := db.Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "agent: not found: %s", id)
		}
		return nil, fmt.Errorf("agent: get %s: %w", id, err)
	}
	return &a, nil
}

// GetOwned retrieves an agent and checks that userID owns it.
func GetOwned(db *gorm.DB, id, userID string) (*models.Agent, error) {
	a, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, apperr.New(apperr.KindAccessDenied, "agent: %s belongs to another user", id)
	}
	return a, nil
}

// ListByUser returns the user's agents, newest first.
func ListByUser(db *gorm.DB, userID string) ([]models.Agent, error) {
	var agents []models.Agent
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("agent: list for %s: %w", userID, err)
	}
	return agents, nil
}

// Update modifies an owned agent and returns the updated row.
func Update(db *gorm.DB, id, userID string, opts UpdateOpts) (*models.Agent, error) {
	if _, err := GetOwned(db, id, userID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return nil, apperr.New(apperr.KindMalformedRequest, "agent: name must not be empty")
		}
		updates["name"] = name
	}
	if opts.Model != nil {
		model := strings.TrimSpace(*opts.Model)
		if model == "" {
			return nil, apperr.New(apperr.KindMalformedRequest, "agent: model must not be empty")
		}
		updates["model"] = model
	}
	if opts.SystemPrompt != nil {
		updates["system_prompt"] = *opts.SystemPrompt
	}
	if opts.Configuration != nil {
		conf, err := normalizeConfiguration(*opts.Configuration)
		if err != nil {
			return nil, err
		}
		updates["configuration"] = conf
	}

	if len(updates) > 0 {
		if err := db.Model(&models.Agent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("agent: update %s: %w", id, err)
		}
	}
	return Get(db, id)
}

// Delete removes an owned agent together with its sessions and their
// messages.
func Delete(db *gorm.DB, id, userID string) error {
	if _, err := GetOwned(db, id, userID); err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		sessions := tx.Model(&models.Session{}).Select("id").Where("agent_id = ?", id)
		if err := tx.Where("session_id IN (?)", sessions).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("agent: delete messages of %s: %w", id, err)
		}
		if err := tx.Where("agent_id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("agent: delete sessions of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Agent{}).Error; err != nil {
			return fmt.Errorf("agent: delete %s: %w", id, err)
		}
		return nil
	})
}

// Store exposes agent lookup to the conversation orchestrator.
type Store struct {
	DB *gorm.DB
}

// GetAgent loads an agent by ID.
func (s Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return Get(s.DB.WithContext(ctx), id)
}

func normalizeConfiguration(conf string) (string, error) {
	conf = strings.TrimSpace(conf)
	if conf == "" {
		return "{}", nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(conf), &obj); err != nil || obj == nil {
		return "", apperr.New(apperr.KindMalformedRequest, "agent: configuration must be a JSON object")
	}
	return conf, nil
}
