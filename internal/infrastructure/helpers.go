package infrastructure

import (
	"mime"
	"strings"

	"github.com/DRSN-tech/brand-images/pkg/e"
)

// GetExtensionFromMIME возвращает расширение файла по MIME-типу изображения.
// Поддерживает jpeg, jpg, png, webp, gif. Возвращает ошибку e.ErrUnsupportedMediaType для неподдерживаемых типов.
func GetExtensionFromMIME(contentType string) (string, error) {
	switch mediaType(contentType) {
	case "image/jpeg", "image/jpg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/webp":
		return "webp", nil
	case "image/gif":
		return "gif", nil
	default:
		return "bin", e.ErrUnsupportedMediaType
	}
}

// IsAcceptableSource сообщает, можно ли передать тело с таким Content-Type в преобразование.
// Пустой тип и application/octet-stream пропускаются: формат определит декодер.
func IsAcceptableSource(contentType string) bool {
	switch mt := mediaType(contentType); mt {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	default:
		_, err := GetExtensionFromMIME(mt)
		return err == nil
	}
}

// mediaType отбрасывает параметры (charset и т.п.) и приводит тип к нижнему регистру.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
