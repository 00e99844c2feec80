package usecase

import (
	"context"

	"github.com/DRSN-tech/brand-images/internal/domain"
)

// AssetLocator находит изображения товара в хранилище.
type AssetLocator interface {
	Locate(ctx context.Context, manufacturerKey string, sku string) ([]domain.ImageAsset, error)
}

// ImageRecorder сохраняет метаданные изображений товара.
type ImageRecorder interface {
	Record(ctx context.Context, req *RecordReq) (*domain.ImageFields, error)
}

// BatchMatcher сопоставляет товары с изображениями в хранилище.
type BatchMatcher interface {
	MatchAll(ctx context.Context, products []domain.Product) (*MatchReport, error)
}

// BatchProcessor обрабатывает исходные изображения и загружает результат в хранилище.
type BatchProcessor interface {
	ProcessAndUpload(ctx context.Context, products []domain.Product, outputRoot string, opts ProcessOptions) (*ProcessReport, error)
}
