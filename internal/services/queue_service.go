package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/repo"
)

// QueueStatser reports queue counts.
type QueueStatser interface {
	Name() string
	Stats(ctx context.Context) (queue.Stats, error)
}

// QueueStatus is the operator view of the reply queue.
type QueueStatus struct {
	Name   string             `json:"name"`
	Counts queue.Stats        `json:"counts"`
	Failed []domain.FailedJob `json:"failed"`
}

// QueueService exposes reply queue health.
type QueueService struct {
	Queue QueueStatser
	// DB holds failed_jobs. Nil leaves Failed empty.
	DB *gorm.DB
}

// Status returns counts and up to failedLimit of the newest failed jobs.
func (s *QueueService) Status(ctx context.Context, failedLimit int) (QueueStatus, error) {
	st, err := s.Queue.Stats(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	out := QueueStatus{Name: s.Queue.Name(), Counts: st, Failed: []domain.FailedJob{}}
	if s.DB == nil || failedLimit <= 0 {
		return out, nil
	}
	failed, err := repo.ListFailedJobs(ctx, s.DB, s.Queue.Name(), failedLimit)
	if err != nil {
		log.Warn().Err(err).Msg("list failed jobs")
		return out, nil
	}
	out.Failed = failed
	return out, nil
}
