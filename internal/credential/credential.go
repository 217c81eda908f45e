// Package credential stores each user's provider API key encrypted at rest
// and resolves it for outbound calls.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/models"
	"gorm.io/gorm"
)

// Info is the caller-visible view of a stored key.
type Info struct {
	ID        string    `json:"id"`
	MaskedKey string    `json:"maskedKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service manages encrypted provider keys.
type Service struct {
	db     *gorm.DB
	cipher *Cipher
	log    *slog.Logger
}

// NewService returns a Service. A nil logger uses slog.Default().
func NewService(db *gorm.DB, cipher *Cipher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cipher: cipher, log: logger}
}

// Store saves key for userID. It fails if the user already has one.
func (s *Service) Store(ctx context.Context, userID, key string) (*Info, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "API key is required")
	}
	if _, err := s.find(ctx, userID); err == nil {
		return nil, errAlreadyConfigured()
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	ciphertext, err := s.cipher.Encrypt(userID, key)
	if err != nil {
		return nil, err
	}
	cred := models.Credential{
		ID:         uuid.NewString(),
		UserID:     userID,
		Ciphertext: ciphertext,
	}
	if err := s.db.WithContext(ctx).Create(&cred).Error; err != nil {
		// A concurrent Store for the same user won the unique user_id index.
		if isDuplicate(err) {
			return nil, errAlreadyConfigured()
		}
		return nil, fmt.Errorf("credential: store for %s: %w", userID, err)
	}
	s.log.Info("credential stored", "user_id", userID)
	return info(&cred, key), nil
}

// Update replaces the key for userID.
func (s *Service) Update(ctx context.Context, userID, key string) (*Info, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "API key is required")
	}
	cred, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	ciphertext, err := s.cipher.Encrypt(userID, key)
	if err != nil {
		return nil, err
	}
	cred.Ciphertext = ciphertext
	if err := s.db.WithContext(ctx).Save(cred).Error; err != nil {
		return nil, fmt.Errorf("credential: update for %s: %w", userID, err)
	}
	s.log.Info("credential updated", "user_id", userID)
	return info(cred, key), nil
}

// Get returns the masked key for userID.
func (s *Service) Get(ctx context.Context, userID string) (*Info, error) {
	cred, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := s.open(cred)
	if err != nil {
		return nil, err
	}
	return info(cred, key), nil
}

// Delete removes the key for userID.
func (s *Service) Delete(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Credential{})
	if result.Error != nil {
		return fmt.Errorf("credential: delete for %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "API key not configured")
	}
	s.log.Info("credential deleted", "user_id", userID)
	return nil
}

// Resolve returns the plaintext key for one outbound call. A missing key is
// a configuration error; an undecryptable one is a corrupt credential.
func (s *Service) Resolve(ctx context.Context, userID string) (string, error) {
	cred, err := s.find(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return "", apperr.New(apperr.KindConfiguration, "API key not configured, add one in settings")
		}
		return "", err
	}
	return s.open(cred)
}

func (s *Service) find(ctx context.Context, userID string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "API key not configured")
		}
		return nil, fmt.Errorf("credential: get for %s: %w", userID, err)
	}
	return &cred, nil
}

func (s *Service) open(cred *models.Credential) (string, error) {
	key, err := s.cipher.Decrypt(cred.UserID, cred.Ciphertext)
	if err != nil {
		s.log.Error("credential cannot be decrypted", "user_id", cred.UserID, "credential_id", cred.ID)
		return "", apperr.Classify(apperr.KindCorruptCredential, err, "stored API key cannot be decrypted, please re-enter it")
	}
	return key, nil
}

func info(cred *models.Credential, key string) *Info {
	return &Info{
		ID:        cred.ID,
		MaskedKey: Mask(key),
		CreatedAt: cred.CreatedAt,
		UpdatedAt: cred.UpdatedAt,
	}
}

func errAlreadyConfigured() error {
	return apperr.New(apperr.KindMalformedRequest, "API key already configured, use update instead")
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
