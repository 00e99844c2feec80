package usecase

import (
	"context"

	"github.com/DRSN-tech/brand-images/internal/domain"
)

type ProductRepository interface {
	// FindBySku возвращает e.ErrProductNotFound, если записи нет.
	FindBySku(ctx context.Context, sku string) (*domain.Product, error)
	// UpsertImages обновляет только поля изображений, остальные поля записи сохраняются.
	UpsertImages(ctx context.Context, sku string, fields *domain.ImageFields) error
	ListWithoutImages(ctx context.Context, limit int) ([]domain.Product, error)
}

type SyncLogRepository interface {
	Append(ctx context.Context, entry *SyncLogEntry) error
}

// TxManager выполняет fn в одной транзакции.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
