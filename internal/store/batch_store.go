package store

import (
	"context"
	"fmt"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/sqlinline"
)

// BatchStorePG implements domain.BatchStore on PostgreSQL.
type BatchStorePG struct {
	sql infra.SQLExecutor
}

func NewBatchStore(sql infra.SQLExecutor) *BatchStorePG {
	return &BatchStorePG{sql: sql}
}

func (s *BatchStorePG) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectBatch, id)
	var b domain.Batch
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.ModelID,
		&b.AspectRatio,
		&b.Glasses,
		&b.HairColor,
		&b.HairStyle,
		&b.Backgrounds,
		&b.Styles,
		&b.Status,
		&b.TotalImagesGenerated,
		&b.CreditsUsed,
		&b.CreatedAt,
		&b.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// FinalizeBatch derives the batch status from its jobs and, when every job is
// terminal, runs the single-statement finalize. The statement itself only
// matches a batch that is still generating and has no open jobs, so racing
// workers are harmless: one finalizes, the rest update zero rows. The Go-side
// derivation just skips the write while jobs are still open.
func (s *BatchStorePG) FinalizeBatch(ctx context.Context, id string) (*domain.Batch, error) {
	statuses, err := s.jobStatuses(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, terminal := domain.DeriveBatchStatus(statuses); !terminal {
		return s.GetBatch(ctx, id)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QFinalizeBatch, id); err != nil {
		return nil, fmt.Errorf("finalize batch: %w", err)
	}
	return s.GetBatch(ctx, id)
}

func (s *BatchStorePG) jobStatuses(ctx context.Context, batchID string) ([]domain.JobStatus, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectBatchJobStatuses, batchID)
	if err != nil {
		return nil, fmt.Errorf("list job statuses: %w", err)
	}
	defer rows.Close()

	var statuses []domain.JobStatus
	for rows.Next() {
		var status domain.JobStatus
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan job status: %w", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

var _ domain.BatchStore = (*BatchStorePG)(nil)
