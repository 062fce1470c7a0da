// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// CreateMessage appends a message to a chat.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID, role, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Omit("Chat").Create(m).Error
}

// RecentMessages returns at most limit of the newest messages of a chat in
// chronological order. Rows are fetched newest-first and reversed.
func RecentMessages(ctx context.Context, db *gorm.DB, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessages removes every message of a chat and returns the number of
// rows deleted. The chat itself is kept.
func DeleteMessages(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	res := db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).Scan(&total).Error
	return total, err
}
