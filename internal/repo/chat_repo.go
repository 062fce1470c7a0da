// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindChat returns the chat of userID with the given title, or ErrNotFound.
func FindChat(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("user_id = ? AND title = ?", userID, title).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateChat returns the chat identified by (userID, title), creating
// it when absent. Concurrent creators race on the unique index; the loser
// re-reads the winner's row.
func GetOrCreateChat(ctx context.Context, db *gorm.DB, userID string, externalChatID int64, title string) (*domain.Chat, error) {
	c, err := FindChat(ctx, db, userID, title)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c = &domain.Chat{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		ExternalChatID: externalChatID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Omit("User").Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return FindChat(ctx, db, userID, title)
		}
		return nil, err
	}
	return c, nil
}

// GetChatByID fetches a chat by primary key, or ErrNotFound.
func GetChatByID(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SetChatCompanion assigns companionID to the chat. Setting the same value
// again is a no-op apart from UpdatedAt. Returns ErrNotFound when the chat is
// missing.
func SetChatCompanion(ctx context.Context, db *gorm.DB, chatID, companionID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{
			"companion_id": companionID,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
