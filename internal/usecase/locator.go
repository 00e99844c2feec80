package usecase

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
)

// Locator находит опубликованные изображения товара в хранилище.
type Locator struct {
	store           BlobStore
	variantSuffixes []string
	logger          logger.Logger
}

func NewLocator(store BlobStore, variantSuffixes []string, logger logger.Logger) *Locator {
	return &Locator{
		store:           store,
		variantSuffixes: variantSuffixes,
		logger:          logger,
	}
}

type locatedObject struct {
	key  string
	name domain.AssetName
}

// Locate возвращает изображения SKU из brand-images/{manufacturerKey}/, отсортированные по порядковому номеру
// (основное изображение перед вариантами). Каждый объект делается публичным.
// Ошибка листинга прерывает вызов, ошибка отдельного объекта логируется и объект пропускается.
func (l *Locator) Locate(ctx context.Context, manufacturerKey string, sku string) ([]domain.ImageAsset, error) {
	const op = "Locator.Locate"

	if err := domain.ValidateSKU(sku); err != nil {
		return nil, e.Validation(op, err)
	}

	objects, err := l.store.List(ctx, domain.ObjectPrefix(manufacturerKey, sku))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	found := make([]locatedObject, 0, len(objects))
	for _, obj := range objects {
		name, ok := domain.ParseAssetName(obj.Key, sku, l.variantSuffixes)
		if !ok {
			continue
		}
		found = append(found, locatedObject{key: obj.Key, name: name})
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.name.Ordinal != b.name.Ordinal {
			return a.name.Ordinal < b.name.Ordinal
		}
		if a.name.IsVariant() != b.name.IsVariant() {
			return !a.name.IsVariant()
		}
		return a.key < b.key
	})

	assets := make([]domain.ImageAsset, 0, len(found))
	for _, obj := range found {
		asset, err := l.publish(ctx, obj)
		if err != nil {
			if e.IsFatal(err) {
				return nil, e.Wrap(op, err)
			}
			l.logger.Warnf("skip %s: %v", obj.key, err)
			continue
		}
		assets = append(assets, *asset)
	}

	return assets, nil
}

func (l *Locator) publish(ctx context.Context, obj locatedObject) (*domain.ImageAsset, error) {
	if err := l.store.MakePublic(ctx, obj.key); err != nil {
		return nil, e.Wrap("make public", err)
	}

	info, err := l.store.Stat(ctx, obj.key)
	if err != nil {
		return nil, e.Wrap("stat", err)
	}

	return newImageAsset(obj, info, l.store.PublicURL(obj.key)), nil
}

func newImageAsset(obj locatedObject, info *ObjectInfo, publicURL string) *domain.ImageAsset {
	return &domain.ImageAsset{
		FileName:     path.Base(obj.key),
		StoragePath:  obj.key,
		PublicURL:    publicURL,
		SizeBytes:    info.Size,
		ContentType:  info.ContentType,
		UpdatedAt:    info.LastModified.UTC(),
		Ordinal:      obj.name.Ordinal,
		IsVariant:    obj.name.IsVariant(),
		VariantLabel: strings.TrimPrefix(obj.name.VariantSuffix, "_"),
	}
}
