package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/sqlinline"
)

// JobStorePG implements domain.JobStore on PostgreSQL. Every coordination
// point is a single conditional statement, so multiple worker processes can
// share the table without any other synchronization.
type JobStorePG struct {
	sql infra.SQLExecutor
}

func NewJobStore(sql infra.SQLExecutor) *JobStorePG {
	return &JobStorePG{sql: sql}
}

func (s *JobStorePG) EnqueueBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error {
	if batch == nil || len(jobs) == 0 {
		return fmt.Errorf("%w: batch with no jobs", domain.ErrInvalidRequest)
	}
	jobIDs := make([]string, len(jobs))
	refURLs := make([]string, len(jobs))
	refPrompts := make([]string, len(jobs))
	for i, job := range jobs {
		jobIDs[i] = job.ID
		refURLs[i] = job.ReferenceImageURL
		refPrompts[i] = job.ReferenceImagePrompt
	}
	first := jobs[0]
	_, err := s.sql.Exec(ctx, sqlinline.QEnqueueBatch,
		batch.ID,
		batch.UserID,
		batch.ModelID,
		batch.AspectRatio,
		batch.Glasses,
		batch.HairColor,
		batch.HairStyle,
		batch.Backgrounds,
		batch.Styles,
		first.TrainingImageURLs,
		first.BasePrompt,
		first.NumImagesPerExample,
		first.MaxAttempts,
		jobIDs,
		refURLs,
		refPrompts,
	)
	if err != nil {
		return fmt.Errorf("enqueue batch: %w", err)
	}
	return nil
}

func (s *JobStorePG) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QClaimNextJob, workerID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJob
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *JobStorePG) ReclaimStaleLocks(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)
	tag, err := s.sql.Exec(ctx, sqlinline.QReclaimStaleLocks, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *JobStorePG) IncrementAttempt(ctx context.Context, id string) (int, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QIncrementJobAttempt, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrTerminalJob
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return attempts, nil
}

func (s *JobStorePG) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QMarkJobCompleted, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *JobStorePG) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QMarkJobFailed, id, errorMessage)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *JobStorePG) MarkRateLimited(ctx context.Context, id string, retryAt time.Time, errorMessage string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QMarkJobRateLimited, id, retryAt, errorMessage)
	if err != nil {
		return fmt.Errorf("mark rate limited: %w", err)
	}
	return nil
}

func (s *JobStorePG) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectJob, id)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.BatchID,
		&job.UserID,
		&job.ModelID,
		&job.ReferenceImageURL,
		&job.ReferenceImagePrompt,
		&job.TrainingImageURLs,
		&job.BasePrompt,
		&job.AspectRatio,
		&job.NumImagesPerExample,
		&job.Glasses,
		&job.HairColor,
		&job.HairStyle,
		&job.Backgrounds,
		&job.Styles,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RetryAt,
		&job.LockedBy,
		&job.LockedAt,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.ProcessedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobStore = (*JobStorePG)(nil)
