package converter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/shopspring/decimal"
)

// ProductConverter преобразует сущности Product между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToEntity(model *ProductModel) (*domain.Product, error)
	ToImageFieldsModel(fields *domain.ImageFields) (*ImageFieldsModel, error)
}

// SyncLogConverter преобразует строку истории между usecase и моделью PostgreSQL.
type SyncLogConverter interface {
	ToModel(entry *usecase.SyncLogEntry) *SyncLogModel
}

type ProductConverterImpl struct{}

func NewProductConverterImpl() *ProductConverterImpl {
	return &ProductConverterImpl{}
}

func (c *ProductConverterImpl) ToEntity(model *ProductModel) (*domain.Product, error) {
	if model == nil {
		return nil, nil
	}

	var manufacturer domain.Manufacturer
	if len(model.Manufacturer) > 0 {
		if err := json.Unmarshal(model.Manufacturer, &manufacturer); err != nil {
			return nil, fmt.Errorf("manufacturer: %w", err)
		}
	}

	rate := decimal.Zero
	if strings.TrimSpace(model.Rate) != "" {
		var err error
		if rate, err = decimal.NewFromString(model.Rate); err != nil {
			return nil, fmt.Errorf("rate: %w", err)
		}
	}

	images := []domain.ImageAsset{}
	if len(model.Images) > 0 {
		if err := json.Unmarshal(model.Images, &images); err != nil {
			return nil, fmt.Errorf("images: %w", err)
		}
	}

	product := domain.NewProduct(model.SKU, model.Name, manufacturer)
	product.Rate = rate
	product.Stock = model.Stock
	product.ImageSources = model.ImageSources
	product.Images = images
	product.ImageCount = model.ImageCount
	product.HasImages = model.HasImages
	product.NormalizedManufacturer = ConvertPointerString(model.NormalizedManufacturer)
	product.LastUpdated = ConvertPointerTime(model.LastUpdated)

	return product, nil
}

func (c *ProductConverterImpl) ToImageFieldsModel(fields *domain.ImageFields) (*ImageFieldsModel, error) {
	images := fields.Images
	if images == nil {
		images = []domain.ImageAsset{}
	}

	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}

	return &ImageFieldsModel{
		Images:                 string(data),
		ImageCount:             fields.ImageCount,
		HasImages:              fields.HasImages,
		NormalizedManufacturer: fields.NormalizedManufacturer,
		LastUpdated:            ConvertTime(fields.LastUpdated),
	}, nil
}

type SyncLogConverterImpl struct{}

func NewSyncLogConverterImpl() *SyncLogConverterImpl {
	return &SyncLogConverterImpl{}
}

func (c *SyncLogConverterImpl) ToModel(entry *usecase.SyncLogEntry) *SyncLogModel {
	return &SyncLogModel{
		RunID:           entry.RunID,
		SKU:             entry.SKU,
		ManufacturerKey: entry.ManufacturerKey,
		HasImages:       entry.HasImages,
		ImageCount:      entry.ImageCount,
		RecordedAt:      ConvertTime(entry.RecordedAt),
	}
}

// ConvertTime приводит время к UTC.
func ConvertTime(t time.Time) time.Time {
	return t.UTC()
}

func ConvertPointerTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func ConvertPointerString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
