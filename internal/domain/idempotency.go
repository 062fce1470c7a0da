// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessedUpdate records a Telegram update_id that has already been handled.
// Telegram re-delivers updates it did not see acknowledged, so the webhook
// claims each id once and ignores replays until ExpiresAt.
type ProcessedUpdate struct {
	UpdateID  int64     `gorm:"primaryKey;autoIncrement:false"`
	ChatID    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedUpdate) TableName() string { return "processed_updates" }

// FailedJob is a reply job that exhausted its retry budget. Payload keeps the
// full job snapshot so it can be inspected or replayed by hand.
type FailedJob struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	JobID       string         `json:"job_id"       gorm:"type:char(36);not null;index"`
	Queue       string         `json:"queue"        gorm:"type:varchar(64);not null"`
	ChatID      int64          `json:"chat_id"      gorm:"not null;index"`
	CompanionID string         `json:"companion_id" gorm:"type:varchar(64)"`
	Attempts    int            `json:"attempts"     gorm:"not null"`
	LastError   string         `json:"last_error"   gorm:"type:text"`
	Payload     datatypes.JSON `json:"payload"`
	FailedAt    time.Time      `json:"failed_at"    gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (FailedJob) TableName() string { return "failed_jobs" }
