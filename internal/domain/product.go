package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар из внешней инвентарной системы.
// Ядро читает SKU и Manufacturer и пишет только поля, связанные с изображениями.
type Product struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Manufacturer Manufacturer    `json:"manufacturer"`
	Rate         decimal.Decimal `json:"rate"`
	Stock        int64           `json:"stock"`
	ImageSources []string        `json:"image_sources"` // URL или локальные пути исходных изображений

	Images                 []ImageAsset `json:"images,omitempty"`
	ImageCount             int          `json:"image_count"`
	HasImages              bool         `json:"has_images"`
	NormalizedManufacturer string       `json:"normalized_manufacturer,omitempty"`
	LastUpdated            *time.Time   `json:"last_updated,omitempty"`
}

func NewProduct(sku string, name string, manufacturer Manufacturer) *Product {
	return &Product{
		SKU:          sku,
		Name:         name,
		Manufacturer: manufacturer,
	}
}

// HasCompleteImages сообщает, что у записи есть непустой и согласованный список изображений.
func (p *Product) HasCompleteImages() bool {
	if p == nil || !p.HasImages || len(p.Images) == 0 {
		return false
	}

	for _, img := range p.Images {
		if img.FileName == "" || img.PublicURL == "" {
			return false
		}
	}

	return p.ImageCount == CountMainImages(p.Images)
}

// Manufacturer — производитель/бренд: либо строка, либо структура с каноническим именем.
type Manufacturer struct {
	plain      string
	structured *StructuredManufacturer
}

// StructuredManufacturer — структурированное значение производителя.
type StructuredManufacturer struct {
	CanonicalName string `json:"canonicalName"`
}

func PlainManufacturer(name string) Manufacturer {
	return Manufacturer{plain: name}
}

func NewStructuredManufacturer(canonicalName string) Manufacturer {
	return Manufacturer{structured: &StructuredManufacturer{CanonicalName: canonicalName}}
}

// IsStructured сообщает, что значение пришло в структурированном виде.
func (m Manufacturer) IsStructured() bool {
	return m.structured != nil
}

// Resolve возвращает единственное строковое имя производителя.
func (m Manufacturer) Resolve() string {
	if m.structured != nil {
		return m.structured.CanonicalName
	}
	return m.plain
}

func (m Manufacturer) MarshalJSON() ([]byte, error) {
	if m.structured != nil {
		return json.Marshal(m.structured)
	}
	return json.Marshal(m.plain)
}

// UnmarshalJSON принимает строку либо объект с полем canonicalName (canonical_name, name).
func (m *Manufacturer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Manufacturer{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = PlainManufacturer(s)
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	for _, field := range []string{"canonicalName", "canonical_name", "name"} {
		if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
			*m = NewStructuredManufacturer(s)
			return nil
		}
	}

	*m = NewStructuredManufacturer("")
	return nil
}

// ImageFields — поля записи продукта, которые ядро записывает после сопоставления.
type ImageFields struct {
	Images                 []ImageAsset
	ImageCount             int
	HasImages              bool
	NormalizedManufacturer string
	LastUpdated            time.Time
}

// NewImageFields единственное место, где вычисляются HasImages и ImageCount.
func NewImageFields(images []ImageAsset, manufacturerKey string, now time.Time) *ImageFields {
	if images == nil {
		images = []ImageAsset{}
	}

	return &ImageFields{
		Images:                 images,
		ImageCount:             CountMainImages(images),
		HasImages:              len(images) > 0,
		NormalizedManufacturer: manufacturerKey,
		LastUpdated:            now.UTC(),
	}
}
