package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(sku, manufacturer string) domain.Product {
	return *domain.NewProduct(sku, "item "+sku, domain.PlainManufacturer(manufacturer))
}

func TestMatchAllUnmatchedRecordsEmptyList(t *testing.T) {
	p := newPipeline(newMemStore(), newMemProducts())

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{product("ABC123", "My Flame Lifestyle")})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, 1, report.Unmatched)
	require.Len(t, report.Results, 1)
	assert.Equal(t, MatchStatusUnmatched, report.Results[0].Status)
	assert.Equal(t, "myflame", report.Results[0].ManufacturerKey)
	assert.Equal(t, "no images found", report.Results[0].Reason)

	stored := p.products.get("ABC123")
	require.NotNil(t, stored)
	assert.False(t, stored.HasImages)
	assert.Zero(t, stored.ImageCount)
	assert.Equal(t, "myflame", stored.NormalizedManufacturer)
}

func TestMatchAllAfterProcessAndUpload(t *testing.T) {
	dir := t.TempDir()
	first := writeSource(t, dir, "first.jpg", "jpeg-1")
	second := writeSource(t, dir, "second.png", "png-2")

	p := newPipeline(newMemStore(), newMemProducts())

	item := product("ABC123", "My Flame Lifestyle")
	item.ImageSources = []string{first, second}

	processed, err := p.processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)
	require.Equal(t, 1, processed.Processed)

	assert.Equal(t, []string{
		"brand-images/myflame/abc123_1.webp",
		"brand-images/myflame/abc123_1_150x150.webp",
		"brand-images/myflame/abc123_1_400x400.webp",
		"brand-images/myflame/abc123_2.webp",
		"brand-images/myflame/abc123_2_150x150.webp",
		"brand-images/myflame/abc123_2_400x400.webp",
	}, p.store.keys())

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{item})
	require.NoError(t, err)
	require.Equal(t, 1, report.Matched)

	res := report.Results[0]
	assert.Equal(t, MatchStatusMatched, res.Status)
	assert.Equal(t, 2, res.ImageCount)
	assert.Len(t, res.Images, 6)
	for _, img := range res.Images {
		assert.NotEmpty(t, img.PublicURL)
	}
}

func TestMatchAllSeesReprocessedImages(t *testing.T) {
	dir := t.TempDir()
	first := writeSource(t, dir, "first.jpg", "jpeg-1")
	second := writeSource(t, dir, "second.jpg", "jpeg-2")

	p := newPipeline(newMemStore(), newMemProducts())
	ctx := context.Background()

	item := product("PAN-3", "WMF")
	item.ImageSources = []string{first}
	_, err := p.processor.ProcessAndUpload(ctx, []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	report, err := p.matcher.MatchAll(ctx, []domain.Product{item})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Results[0].ImageCount)

	cached, err := p.matcher.MatchAll(ctx, []domain.Product{item})
	require.NoError(t, err)
	assert.Equal(t, MatchSourceCache, cached.Results[0].Source)

	item.ImageSources = []string{first, second}
	_, err = p.processor.ProcessAndUpload(ctx, []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	report, err = p.matcher.MatchAll(ctx, []domain.Product{item})
	require.NoError(t, err)
	assert.Equal(t, MatchStatusMatched, report.Results[0].Status)
	assert.NotEqual(t, MatchSourceCache, report.Results[0].Source)
	assert.Equal(t, 2, report.Results[0].ImageCount)
}

func TestMatchAllRejectsPathLikeSKU(t *testing.T) {
	store := newMemStore()
	store.put("brand-images/wmf/ab/12_1.webp")

	p := newPipeline(store, newMemProducts())

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{product("AB/12", "WMF")})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, e.ErrInvalidSKU.Error(), report.Results[0].Reason)
	assert.Zero(t, p.locator.count())
	assert.Nil(t, p.products.get("AB/12"))
}

func TestMatchAllCacheShortCircuit(t *testing.T) {
	store := newMemStore()
	store.put("brand-images/staub/st-1_1.webp")

	p := newPipeline(store, newMemProducts())
	items := []domain.Product{product("ST-1", "Staub")}

	first, err := p.matcher.MatchAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, MatchSourceLocator, first.Results[0].Source)
	assert.Equal(t, 1, p.locator.count())

	second, err := p.matcher.MatchAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, MatchStatusMatched, second.Results[0].Status)
	assert.Equal(t, MatchSourceCache, second.Results[0].Source)
	assert.Equal(t, 1, p.locator.count())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestMatchAllUsesCompleteDatabaseRecord(t *testing.T) {
	stored := domain.NewProduct("WMF-9", "Pan", domain.PlainManufacturer("WMF"))
	stored.Images = []domain.ImageAsset{{FileName: "wmf-9_1.webp", PublicURL: "http://cdn/wmf-9_1.webp", Ordinal: 1}}
	stored.ImageCount = 1
	stored.HasImages = true

	p := newPipeline(newMemStore(), newMemProducts(stored))

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{product("WMF-9", "WMF")})
	require.NoError(t, err)
	assert.Equal(t, MatchSourceDatabase, report.Results[0].Source)
	assert.Equal(t, 0, p.locator.count())
	assert.Zero(t, p.products.upserts)
}

func TestMatchAllIncompleteDatabaseRecordFallsBackToStore(t *testing.T) {
	stored := domain.NewProduct("WMF-9", "Pan", domain.PlainManufacturer("WMF"))
	stored.Images = []domain.ImageAsset{{FileName: "wmf-9_1.webp", Ordinal: 1}}
	stored.ImageCount = 1
	stored.HasImages = true

	store := newMemStore()
	store.put("brand-images/wmf/wmf-9_1.webp")
	p := newPipeline(store, newMemProducts(stored))

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{product("WMF-9", "WMF")})
	require.NoError(t, err)
	assert.Equal(t, MatchSourceLocator, report.Results[0].Source)
	assert.Equal(t, 1, p.locator.count())
}

func TestMatchAllCountsAndOrder(t *testing.T) {
	store := newMemStore()
	products := newMemProducts()
	products.findErrs["BROKEN"] = errors.New("row decode failed")

	var items []domain.Product
	for i := 0; i < 11; i++ {
		sku := fmt.Sprintf("SKU-%02d", i)
		if i%2 == 0 {
			store.put(fmt.Sprintf("brand-images/wmf/sku-%02d_1.webp", i))
		}
		items = append(items, product(sku, "WMF"))
	}
	items = append(items, product("", "WMF"), product("BROKEN", "WMF"))

	p := newPipeline(store, products)

	report, err := p.matcher.MatchAll(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, report.Results, len(items))
	assert.Equal(t, len(items), report.Matched+report.Unmatched+report.Errors)
	assert.Equal(t, 6, report.Matched)
	assert.Equal(t, 6, report.Unmatched)
	assert.Equal(t, 1, report.Errors)

	for i := 0; i < 11; i++ {
		assert.Equal(t, items[i].SKU, report.Results[i].SKU)
	}
	assert.Equal(t, "missing SKU", report.Results[11].Reason)
	assert.Equal(t, MatchStatusError, report.Results[12].Status)
	assert.Contains(t, report.Results[12].Reason, "row decode failed")
}

func TestMatchAllAbortsOnFatalError(t *testing.T) {
	store := newMemStore()
	store.listErr = e.Fatal("minio.List", e.ErrStorageUnavailable)

	p := newPipeline(store, newMemProducts())

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{product("A", "WMF"), product("B", "WMF")})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, e.IsFatal(err))
}

func TestMatchAllStructuredManufacturer(t *testing.T) {
	store := newMemStore()
	store.put("brand-images/emilehenry/eh-1_1.webp")
	p := newPipeline(store, newMemProducts())

	item := *domain.NewProduct("EH-1", "Dish", domain.NewStructuredManufacturer("Émile Henry"))

	report, err := p.matcher.MatchAll(context.Background(), []domain.Product{item})
	require.NoError(t, err)
	assert.Equal(t, "emilehenry", report.Results[0].ManufacturerKey)
	assert.Equal(t, MatchStatusMatched, report.Results[0].Status)
}

func TestMatchAllEmptyInput(t *testing.T) {
	p := newPipeline(newMemStore(), newMemProducts())

	report, err := p.matcher.MatchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Zero(t, report.Matched+report.Unmatched+report.Errors)
}
