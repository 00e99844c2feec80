package domain

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/brand-images/pkg/e"
)

const (
	// StorageRoot — корневой префикс дерева объектов с изображениями брендов.
	StorageRoot = "brand-images"
	// OutputExt — расширение производных изображений.
	OutputExt = "webp"
	// FallbackOrdinal присваивается именам, из которых не удалось извлечь порядковый номер.
	FallbackOrdinal = 999
)

// AcceptedExtensions — расширения, которые Locator считает изображениями.
var AcceptedExtensions = map[string]struct{}{
	"webp": {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// ImageAsset описывает изображение товара, найденное в хранилище.
type ImageAsset struct {
	FileName     string    `json:"file_name"`
	StoragePath  string    `json:"storage_path"`
	PublicURL    string    `json:"public_url"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	UpdatedAt    time.Time `json:"updated_at"`
	Ordinal      int       `json:"ordinal"`
	IsVariant    bool      `json:"is_variant"`
	VariantLabel string    `json:"variant_label,omitempty"`
}

// CountMainImages считает изображения без учёта вариантов.
func CountMainImages(images []ImageAsset) int {
	n := 0
	for _, img := range images {
		if !img.IsVariant {
			n++
		}
	}
	return n
}

// AssetName — метаданные, закодированные в имени файла.
type AssetName struct {
	Ordinal       int
	VariantSuffix string // пусто для основного изображения
	Ext           string
}

func (a AssetName) IsVariant() bool {
	return a.VariantSuffix != ""
}

// SKUFilePrefix — SKU в нижнем регистре, как он используется в именах файлов.
func SKUFilePrefix(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// MainFileName формирует имя основного изображения: {sku}_{ordinal}.{ext}.
func MainFileName(sku string, ordinal int) string {
	return fmt.Sprintf("%s_%d.%s", SKUFilePrefix(sku), ordinal, OutputExt)
}

// VariantFileName формирует имя варианта: {sku}_{ordinal}{suffix}.{ext}.
func VariantFileName(sku string, ordinal int, suffix string) string {
	return fmt.Sprintf("%s_%d%s.%s", SKUFilePrefix(sku), ordinal, suffix, OutputExt)
}

// ObjectKey формирует путь объекта: brand-images/{manufacturerKey}/{fileName}.
func ObjectKey(manufacturerKey, fileName string) string {
	return path.Join(StorageRoot, manufacturerKey, fileName)
}

// ObjectPrefix — префикс листинга для SKU: brand-images/{manufacturerKey}/{sku}.
func ObjectPrefix(manufacturerKey, sku string) string {
	return path.Join(StorageRoot, manufacturerKey) + "/" + SKUFilePrefix(sku)
}

var (
	ordinalPattern = regexp.MustCompile(`^_(\d+)`)
	ordinalSegment = regexp.MustCompile(`_\d+(_|$)`)
)

// ParseAssetName разбирает имя файла по соглашению об именовании.
// ok=false, если имя не относится к этому SKU или расширение не принимается.
// После _{ordinal} допускается только один из настроенных суффиксов вариантов.
// FallbackOrdinal получают только имена без сегмента _{digits}.
func ParseAssetName(fileName, sku string, variantSuffixes []string) (AssetName, bool) {
	base := path.Base(fileName)
	prefix := SKUFilePrefix(sku)
	if prefix == "" {
		return AssetName{}, false
	}

	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return AssetName{}, false
	}

	ext := strings.ToLower(base[dot+1:])
	if _, ok := AcceptedExtensions[ext]; !ok {
		return AssetName{}, false
	}

	stem := strings.ToLower(base[:dot])
	if !strings.HasPrefix(stem, prefix) {
		return AssetName{}, false
	}

	rest := stem[len(prefix):]
	// abc1234_1 не должен попадать под префикс abc123
	if rest != "" && rest[0] != '_' {
		return AssetName{}, false
	}

	name := AssetName{Ordinal: FallbackOrdinal, Ext: ext}

	if m := ordinalPattern.FindStringSubmatch(rest); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return AssetName{}, false
		}
		name.Ordinal = n
		rest = rest[len(m[0]):]

		if rest == "" {
			return name, true
		}
		// abc_1_1 — это файл SKU abc_1, а не вариант abc
		for _, suffix := range variantSuffixes {
			if suffix != "" && rest == strings.ToLower(suffix) {
				name.VariantSuffix = suffix
				return name, true
			}
		}
		return AssetName{}, false
	}

	if ordinalSegment.MatchString(rest) {
		return AssetName{}, false
	}

	for _, suffix := range variantSuffixes {
		if suffix != "" && strings.HasSuffix(rest, strings.ToLower(suffix)) {
			name.VariantSuffix = suffix
			break
		}
	}

	return name, true
}

// ValidateSKU проверяет, что SKU можно использовать как часть имени объекта и локального файла.
func ValidateSKU(sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return e.ErrMissingSKU
	}
	if strings.ContainsAny(sku, `/\`) || strings.Contains(sku, "..") {
		return e.ErrInvalidSKU
	}
	return nil
}
