// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for
// CompanionSelection.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// UpsertSelection records sel as the current choice of its Telegram user,
// replacing any earlier one.
func UpsertSelection(ctx context.Context, db *gorm.DB, sel domain.CompanionSelection) error {
	sel.SelectedAt = sel.SelectedAt.UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"companion_id", "selected_at"}),
		}).
		Create(&sel).Error
}

// GetSelection returns the recorded choice of a Telegram user, or ErrNotFound.
func GetSelection(ctx context.Context, db *gorm.DB, telegramUserID int64) (*domain.CompanionSelection, error) {
	var sel domain.CompanionSelection
	err := db.WithContext(ctx).
		Where("telegram_user_id = ?", telegramUserID).
		First(&sel).Error
	if err != nil {
		return nil, err
	}
	return &sel, nil
}
