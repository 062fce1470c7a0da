// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer and for the
// conversation summary.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// CompanionsStats returns the number of companion rows and the greatest
// UpdatedAt among them. When the catalog is empty the count is 0 and
// maxUpdatedAt is nil.
func CompanionsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Companion{}).Session(&gorm.Session{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessageStats summarizes a chat's history: number of messages and the
// creation time of the first and last one (nil when the chat is empty).
func MessageStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, first, last *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).Session(&gorm.Session{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, nil, err
	}
	if count == 0 {
		return 0, nil, nil, nil
	}

	var lo, hi struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at ASC").Limit(1).Scan(&lo).Error; err != nil {
		return 0, nil, nil, err
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&hi).Error; err != nil {
		return 0, nil, nil, err
	}
	return count, &lo.CreatedAt, &hi.CreatedAt, nil
}
