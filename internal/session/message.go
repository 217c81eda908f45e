package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/models"
	"gorm.io/gorm"
)

// TimelineLimit caps the number of messages returned by List.
const TimelineLimit = 1000

// appendAttempts bounds retries when two writers race for a sequence number.
const appendAttempts = 3

// Append assigns msg the next sequence number in its session and inserts
// it. ID and Metadata are filled in when empty.
func Append(db *gorm.DB, msg *models.Message) error {
	if msg.SessionID == "" {
		return apperr.New(apperr.KindMalformedRequest, "session: message has no session")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Metadata == "" {
		msg.Metadata = "{}"
	}

	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			var maxSeq int
			if err := tx.Model(&models.Message{}).
				Where("session_id = ?", msg.SessionID).
				Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			msg.Sequence = maxSeq + 1
			return tx.Create(msg).Error
		})
		if err == nil || !isDuplicate(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("session: append message to %s: %w", msg.SessionID, err)
	}
	return nil
}

// Recent returns up to limit messages of a session with a sequence below
// before (0 means no bound), oldest first. Error-annotated messages are
// skipped.
func Recent(db *gorm.DB, sessionID string, before, limit int) ([]models.Message, error) {
	q := db.Where("session_id = ? AND (error IS NULL OR error = '')", sessionID)
	if before > 0 {
		q = q.Where("sequence < ?", before)
	}
	var msgs []models.Message
	if err := q.Order("sequence DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("session: recent messages of %s: %w", sessionID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// List returns a session's full timeline in sequence order, failed
// messages included.
func List(db *gorm.DB, sessionID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := db.Where("session_id = ?", sessionID).Order("sequence").Limit(TimelineLimit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("session: list messages of %s: %w", sessionID, err)
	}
	return msgs, nil
}

// Count returns the number of messages in a session.
func Count(db *gorm.DB, sessionID string) (int, error) {
	var n int64
	if err := db.Model(&models.Message{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("session: count messages of %s: %w", sessionID, err)
	}
	return int(n), nil
}

// Annotate records a processing failure on a message.
func Annotate(db *gorm.DB, messageID, reason string) error {
	result := db.Model(&models.Message{}).Where("id = ?", messageID).Update("error", reason)
	if result.Error != nil {
		return fmt.Errorf("session: annotate message %s: %w", messageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "session: message not found: %s", messageID)
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
