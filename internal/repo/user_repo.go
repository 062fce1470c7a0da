// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for User and
// UserSettings.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// Default settings created alongside a new user.
const (
	DefaultTone     = "friendly"
	DefaultLanguage = "en"
)

// UserProfile carries the identity fields Telegram gives us for a user.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// GetUserByTelegramID fetches a user (with settings) by Telegram id, or
// ErrNotFound.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Settings").
		Where("telegram_id = ?", telegramID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser returns the user for p.TelegramID, creating it with default
// settings when absent. An existing user is not modified.
func EnsureUser(ctx context.Context, db *gorm.DB, p UserProfile) (*domain.User, error) {
	u, err := GetUserByTelegramID(ctx, db, p.TelegramID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u, err = createUser(ctx, db, p)
	if isUniqueViolation(err) {
		// Lost a creation race; the row exists now.
		return GetUserByTelegramID(ctx, db, p.TelegramID)
	}
	return u, err
}

// UpsertUser creates the user for p.TelegramID or refreshes its profile
// fields. Subscription data and settings of an existing user are kept.
func UpsertUser(ctx context.Context, db *gorm.DB, p UserProfile) (*domain.User, error) {
	u, err := EnsureUser(ctx, db, p)
	if err != nil {
		return nil, err
	}
	if u.Username == p.Username && u.FirstName == p.FirstName && u.LastName == p.LastName {
		return u, nil
	}
	err = db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"username":   p.Username,
			"first_name": p.FirstName,
			"last_name":  p.LastName,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	return GetUserByTelegramID(ctx, db, p.TelegramID)
}

func createUser(ctx context.Context, db *gorm.DB, p UserProfile) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:               uuid.NewString(),
		TelegramID:       p.TelegramID,
		Username:         p.Username,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		SubscriptionTier: domain.TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Settings").Create(u).Error; err != nil {
			return err
		}
		s := &domain.UserSettings{
			UserID:    u.ID,
			Tone:      DefaultTone,
			Language:  DefaultLanguage,
			UpdatedAt: now,
		}
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		u.Settings = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}
