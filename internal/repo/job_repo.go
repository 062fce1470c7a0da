// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores reply jobs that exhausted their retries.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
)

// CreateFailedJob inserts a failed-job record. ID and FailedAt are filled in
// when empty.
func CreateFailedJob(ctx context.Context, db *gorm.DB, fj *domain.FailedJob) error {
	if fj.ID == "" {
		fj.ID = uuid.NewString()
	}
	if fj.FailedAt.IsZero() {
		fj.FailedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(fj).Error
}

// ListFailedJobs returns the newest failed jobs of a queue, newest first.
func ListFailedJobs(ctx context.Context, db *gorm.DB, queue string, limit int) ([]domain.FailedJob, error) {
	var out []domain.FailedJob
	q := db.WithContext(ctx).Where("queue = ?", queue).Order("failed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// PruneFailedJobs keeps the newest keep records of a queue and deletes the rest.
func PruneFailedJobs(ctx context.Context, db *gorm.DB, queue string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	keepIDs := db.Model(&domain.FailedJob{}).
		Select("id").
		Where("queue = ?", queue).
		Order("failed_at DESC").
		Limit(keep)
	res := db.WithContext(ctx).
		Where("queue = ? AND id NOT IN (?)", queue, keepIDs).
		Delete(&domain.FailedJob{})
	return res.RowsAffected, res.Error
}
