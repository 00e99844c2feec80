package converter

import "time"

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	SKU                    string     `db:"sku"`
	Name                   string     `db:"name"`
	Manufacturer           []byte     `db:"manufacturer"` // jsonb: строка или объект
	Rate                   string     `db:"rate"`         // numeric как текст
	Stock                  int64      `db:"stock"`
	ImageSources           []string   `db:"image_sources"`
	Images                 []byte     `db:"images"` // jsonb
	ImageCount             int        `db:"image_count"`
	HasImages              bool       `db:"has_images"`
	NormalizedManufacturer *string    `db:"normalized_manufacturer"`
	LastUpdated            *time.Time `db:"last_updated"`
}

// ImageFieldsModel — поля изображений для upsert.
type ImageFieldsModel struct {
	Images                 string
	ImageCount             int
	HasImages              bool
	NormalizedManufacturer string
	LastUpdated            time.Time
}

// SyncLogModel представляет запись таблицы image_sync_log в PostgreSQL.
type SyncLogModel struct {
	RunID           string    `db:"run_id"`
	SKU             string    `db:"sku"`
	ManufacturerKey string    `db:"manufacturer_key"`
	HasImages       bool      `db:"has_images"`
	ImageCount      int       `db:"image_count"`
	RecordedAt      time.Time `db:"recorded_at"`
}
