package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
)

// DBRecorder persists exhausted jobs to the failed_jobs table and prunes it
// to the newest Keep rows per queue.
type DBRecorder struct {
	DB   *gorm.DB
	Keep int
}

// RecordFailure implements FailureRecorder. Errors are logged only; a broken
// audit trail must not affect the worker.
func (r DBRecorder) RecordFailure(ctx context.Context, queue string, job *Job, err error) {
	payload, merr := json.Marshal(job)
	if merr != nil {
		log.Warn().Err(merr).Str("job_id", job.ID).Msg("marshal failed job")
		payload = []byte("{}")
	}
	fj := &domain.FailedJob{
		JobID:       job.ID,
		Queue:       queue,
		ChatID:      job.ChatID,
		CompanionID: job.Companion.ID,
		Attempts:    job.Attempt,
		Payload:     datatypes.JSON(payload),
	}
	if err != nil {
		fj.LastError = err.Error()
	}
	if cerr := repo.CreateFailedJob(ctx, r.DB, fj); cerr != nil {
		log.Warn().Err(cerr).Str("job_id", job.ID).Msg("persist failed job")
		return
	}
	if r.Keep > 0 {
		if _, perr := repo.PruneFailedJobs(ctx, r.DB, queue, r.Keep); perr != nil {
			log.Warn().Err(perr).Str("queue", queue).Msg("prune failed jobs")
		}
	}
}
