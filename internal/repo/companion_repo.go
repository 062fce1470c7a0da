// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Companion
// catalog.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// ListCompanions returns companions in seed order. When activeOnly is set,
// inactive companions are skipped.
func ListCompanions(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Companion, error) {
	var out []domain.Companion
	q := db.WithContext(ctx).Order("position ASC, name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetCompanion fetches a companion by id, or ErrNotFound.
func GetCompanion(ctx context.Context, db *gorm.DB, id string) (*domain.Companion, error) {
	var c domain.Companion
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompanionByName fetches a companion by case-insensitive name, or
// ErrNotFound.
func GetCompanionByName(ctx context.Context, db *gorm.DB, name string) (*domain.Companion, error) {
	var c domain.Companion
	err := db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCompanions returns the number of companion rows, active or not.
func CountCompanions(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Companion{}).Count(&n).Error
	return n, err
}

// CreateCompanions inserts the given companions in one transaction,
// assigning Position from slice order. All columns are written so an
// inactive companion is not flipped to the column default.
func CreateCompanions(ctx context.Context, db *gorm.DB, cs []domain.Companion) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range cs {
			c := cs[i]
			c.Position = i + 1
			c.CreatedAt = now
			c.UpdatedAt = now
			if err := tx.Select("*").Create(&c).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CompanionPatch lists the fields an administrator may change after seeding.
// Nil fields are left untouched.
type CompanionPatch struct {
	Description      *string
	Personality      *string
	EnergyCost       *int
	SubscriptionTier *string
	IsActive         *bool
}

// UpdateCompanion applies p to the companion with the given id. It returns
// ErrNotFound when no row matches.
func UpdateCompanion(ctx context.Context, db *gorm.DB, id string, p CompanionPatch) error {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Personality != nil {
		fields["personality"] = *p.Personality
	}
	if p.EnergyCost != nil {
		fields["energy_cost"] = *p.EnergyCost
	}
	if p.SubscriptionTier != nil {
		fields["subscription_tier"] = *p.SubscriptionTier
	}
	if p.IsActive != nil {
		fields["is_active"] = *p.IsActive
	}
	res := db.WithContext(ctx).
		Model(&domain.Companion{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
