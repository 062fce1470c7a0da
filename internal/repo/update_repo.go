// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the replay guard for Telegram updates.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// ErrDuplicate indicates that an update_id has already been claimed and the
// claim has not expired yet.
var ErrDuplicate = errors.New("duplicate")

// ClaimUpdate records updateID as processed until now+ttl. It returns
// ErrDuplicate when a live claim exists; an expired claim is replaced.
func ClaimUpdate(ctx context.Context, db *gorm.DB, updateID, chatID int64, ttl time.Duration, now time.Time) error {
	now = now.UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("update_id = ? AND expires_at <= ?", updateID, now).
			Delete(&domain.ProcessedUpdate{}).Error; err != nil {
			return err
		}
		rec := &domain.ProcessedUpdate{
			UpdateID:  updateID,
			ChatID:    chatID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		if err := tx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

// ReleaseUpdate drops the claim on updateID so a re-delivery is processed.
func ReleaseUpdate(ctx context.Context, db *gorm.DB, updateID int64) error {
	return db.WithContext(ctx).
		Where("update_id = ?", updateID).
		Delete(&domain.ProcessedUpdate{}).Error
}

// PurgeUpdates deletes claims that expired before now and returns how many
// rows were removed.
func PurgeUpdates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.ProcessedUpdate{})
	return res.RowsAffected, res.Error
}
