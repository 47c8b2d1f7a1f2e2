package store

import (
	"context"
	"fmt"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/sqlinline"
)

// PhotoStorePG implements domain.PhotoStore on PostgreSQL.
type PhotoStorePG struct {
	sql infra.SQLExecutor
}

func NewPhotoStore(sql infra.SQLExecutor) *PhotoStorePG {
	return &PhotoStorePG{sql: sql}
}

func (s *PhotoStorePG) Insert(ctx context.Context, photo *domain.Photo) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertPhoto,
		photo.ID,
		photo.UserID,
		photo.ModelID,
		photo.BatchID,
		photo.URL,
		photo.Status,
		photo.CreditsUsed,
		photo.Prompt,
		photo.AspectRatio,
		photo.Glasses,
		photo.HairColor,
		photo.HairStyle,
		photo.Backgrounds,
		photo.Styles,
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

func (s *PhotoStorePG) ListByBatch(ctx context.Context, batchID string) ([]domain.Photo, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectBatchPhotos, batchID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []domain.Photo
	for rows.Next() {
		var p domain.Photo
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.ModelID,
			&p.BatchID,
			&p.URL,
			&p.Status,
			&p.CreditsUsed,
			&p.Prompt,
			&p.AspectRatio,
			&p.Glasses,
			&p.HairColor,
			&p.HairStyle,
			&p.Backgrounds,
			&p.Styles,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

var _ domain.PhotoStore = (*PhotoStorePG)(nil)
