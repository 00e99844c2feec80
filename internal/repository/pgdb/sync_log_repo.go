package pgdb

import (
	"context"

	"github.com/DRSN-tech/brand-images/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// SyncLogRepo пишет историю сопоставлений в image_sync_log.
type SyncLogRepo struct {
	pool *pgxpool.Pool
	conv converter.SyncLogConverter
}

func NewSyncLogRepo(pool *pgxpool.Pool, conv converter.SyncLogConverter) *SyncLogRepo {
	return &SyncLogRepo{
		pool: pool,
		conv: conv,
	}
}

func (s *SyncLogRepo) Append(ctx context.Context, entry *usecase.SyncLogEntry) error {
	model := s.conv.ToModel(entry)

	query := `
		INSERT INTO image_sync_log (run_id, sku, manufacturer_key, has_images, image_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := conn(ctx, s.pool).Exec(ctx, query,
		model.RunID,
		model.SKU,
		model.ManufacturerKey,
		model.HasImages,
		model.ImageCount,
		model.RecordedAt,
	); err != nil {
		return classify(whereami.WhereAmI(), err)
	}

	return nil
}
