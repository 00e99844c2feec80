package usecase

import (
	"time"

	"github.com/DRSN-tech/brand-images/internal/domain"
)

// MATCHER

type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusError     MatchStatus = "error"
)

// MatchSource — откуда взят результат сопоставления.
type MatchSource string

const (
	MatchSourceNone     MatchSource = "none"
	MatchSourceCache    MatchSource = "cache"
	MatchSourceDatabase MatchSource = "database"
	MatchSourceLocator  MatchSource = "locator"
)

// ProductMatch — неизменяемый результат сопоставления одного товара.
type ProductMatch struct {
	SKU             string              `json:"sku"`
	ManufacturerKey string              `json:"manufacturer_key"`
	Status          MatchStatus         `json:"status"`
	Source          MatchSource         `json:"source"`
	Reason          string              `json:"reason,omitempty"`
	ImageCount      int                 `json:"image_count"`
	Images          []domain.ImageAsset `json:"images,omitempty"`
}

// MatchReport — итог MatchAll. Results идут в порядке входных товаров.
type MatchReport struct {
	RunID     string         `json:"run_id"`
	Matched   int            `json:"matched_count"`
	Unmatched int            `json:"unmatched_count"`
	Errors    int            `json:"error_count"`
	Results   []ProductMatch `json:"results"`
}

// CachedMatch — полезная нагрузка кэша сопоставлений.
type CachedMatch struct {
	ManufacturerKey string              `json:"manufacturer_key"`
	Images          []domain.ImageAsset `json:"images"`
}

// RECORDER

// RecordReq — запрос на сохранение изображений товара.
type RecordReq struct {
	RunID           string
	SKU             string
	ManufacturerKey string
	Images          []domain.ImageAsset
}

// SyncLogEntry — строка истории сопоставлений.
type SyncLogEntry struct {
	RunID           string
	SKU             string
	ManufacturerKey string
	HasImages       bool
	ImageCount      int
	RecordedAt      time.Time
}

// MatchEvent — событие для внешних потребителей (синхронизация с маркетплейсом).
type MatchEvent struct {
	RunID           string    `json:"run_id"`
	SKU             string    `json:"sku"`
	ManufacturerKey string    `json:"manufacturer_key"`
	HasImages       bool      `json:"has_images"`
	ImageCount      int       `json:"image_count"`
	ImageURLs       []string  `json:"image_urls"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// PROCESSOR

type ProcessStatus string

const (
	ProcessStatusProcessed ProcessStatus = "processed"
	ProcessStatusFailed    ProcessStatus = "failed"
)

// ProcessOptions — настройки ProcessAndUpload. Нулевые значения заменяются значениями по умолчанию.
type ProcessOptions struct {
	Transform       TransformOptions
	BatchSize       int
	BatchDelay      time.Duration
	DownloadTimeout time.Duration
}

// ProcessResult — результат обработки одного товара.
type ProcessResult struct {
	SKU             string        `json:"sku"`
	ManufacturerKey string        `json:"manufacturer_key"`
	Status          ProcessStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	Uploaded        []string      `json:"uploaded,omitempty"`
	SourceErrors    []string      `json:"source_errors,omitempty"`
	Orphaned        []string      `json:"orphaned,omitempty"` // частично загруженные объекты, которые не удалось удалить
	ImageCount      int           `json:"image_count"`
}

// ProcessReport — манифест ProcessAndUpload.
type ProcessReport struct {
	RunID       string          `json:"run_id"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed_count"`
	Failed      int             `json:"failed_count"`
	Results     []ProcessResult `json:"results"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// INFRASTRUCTURE

// ObjectInfo — метаданные объекта в хранилище.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// VariantSpec описывает один производный размер.
type VariantSpec struct {
	Suffix string
	Width  int
	Height int
}

// TransformOptions — настройки движка преобразования. Отрицательный Padding отключает поля.
type TransformOptions struct {
	Padding   int
	Quality   int
	MaxWidth  int
	MaxHeight int
	Variants  []VariantSpec
}

// VariantSuffixes возвращает суффиксы вариантов в порядке объявления.
func (o TransformOptions) VariantSuffixes() []string {
	suffixes := make([]string, 0, len(o.Variants))
	for _, v := range o.Variants {
		suffixes = append(suffixes, v.Suffix)
	}
	return suffixes
}

// ImageMetadata — свойства исходного изображения.
type ImageMetadata struct {
	Width    int
	Height   int
	Channels int
	Format   string
	HasAlpha bool
}

type TransformResult struct {
	Main       []byte
	MainWidth  int
	MainHeight int
	Variants   map[string][]byte // по суффиксу
	Original   ImageMetadata
}

// MAPPERS

func NewRecordReq(runID, sku, manufacturerKey string, images []domain.ImageAsset) *RecordReq {
	return &RecordReq{
		RunID:           runID,
		SKU:             sku,
		ManufacturerKey: manufacturerKey,
		Images:          images,
	}
}

func NewSyncLogEntry(req *RecordReq, fields *domain.ImageFields) *SyncLogEntry {
	return &SyncLogEntry{
		RunID:           req.RunID,
		SKU:             req.SKU,
		ManufacturerKey: req.ManufacturerKey,
		HasImages:       fields.HasImages,
		ImageCount:      fields.ImageCount,
		RecordedAt:      fields.LastUpdated,
	}
}

func NewMatchEvent(req *RecordReq, fields *domain.ImageFields) *MatchEvent {
	urls := make([]string, 0, fields.ImageCount)
	for _, img := range fields.Images {
		if !img.IsVariant {
			urls = append(urls, img.PublicURL)
		}
	}

	return &MatchEvent{
		RunID:           req.RunID,
		SKU:             req.SKU,
		ManufacturerKey: req.ManufacturerKey,
		HasImages:       fields.HasImages,
		ImageCount:      fields.ImageCount,
		ImageURLs:       urls,
		RecordedAt:      fields.LastUpdated,
	}
}

func newErrorMatch(sku, manufacturerKey string, err error) ProductMatch {
	return ProductMatch{
		SKU:             sku,
		ManufacturerKey: manufacturerKey,
		Status:          MatchStatusError,
		Source:          MatchSourceNone,
		Reason:          err.Error(),
	}
}

func newUnmatched(sku, manufacturerKey string, source MatchSource, reason string) ProductMatch {
	return ProductMatch{
		SKU:             sku,
		ManufacturerKey: manufacturerKey,
		Status:          MatchStatusUnmatched,
		Source:          source,
		Reason:          reason,
	}
}

func newMatched(sku, manufacturerKey string, source MatchSource, images []domain.ImageAsset) ProductMatch {
	return ProductMatch{
		SKU:             sku,
		ManufacturerKey: manufacturerKey,
		Status:          MatchStatusMatched,
		Source:          source,
		ImageCount:      domain.CountMainImages(images),
		Images:          images,
	}
}
