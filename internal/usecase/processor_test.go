package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestProcessor(t *testing.T, store *memStore, products *memProducts, fetcher SourceFetcher) (*Processor, string) {
	t.Helper()
	log := logger.NewNop()
	transformer := newFakeTransformer()
	locator := NewLocator(store, transformer.Options().VariantSuffixes(), log)
	recorder := NewRecorder(products, &memSyncLog{}, directTx{}, nil, testClock, log)

	tempDir := t.TempDir()
	return NewProcessor(store, transformer, fetcher, locator, recorder, nil, nil, tempDir, testClock, log), tempDir
}

func TestProcessAndUploadRemoteSources(t *testing.T) {
	store := newMemStore()
	products := newMemProducts()
	fetcher := &mapFetcher{bodies: map[string]string{
		"https://img.example.com/a.jpg": "remote-a",
	}}
	processor, tempDir := newTestProcessor(t, store, products, fetcher)

	item := product("PAN-7", "Le Creuset")
	item.ImageSources = []string{"https://img.example.com/a.jpg", "https://img.example.com/missing.jpg"}

	outputRoot := t.TempDir()
	report, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, outputRoot, ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, ProcessStatusProcessed, res.Status)
	assert.Equal(t, "lecreuset", res.ManufacturerKey)
	assert.Equal(t, 1, res.ImageCount)
	assert.Len(t, res.Uploaded, 3)
	require.Len(t, res.SourceErrors, 1)
	assert.Contains(t, res.SourceErrors[0], "missing.jpg")

	data, err := store.Get(context.Background(), "brand-images/lecreuset/pan-7_1.webp")
	require.NoError(t, err)
	assert.Equal(t, "webp:remote-a", string(data))

	// временные файлы удаляются и при успехе, и при ошибке
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	local, err := os.ReadFile(filepath.Join(outputRoot, "lecreuset", "pan-7_1_150x150.webp"))
	require.NoError(t, err)
	assert.Equal(t, "webp_150x150:remote-a", string(local))

	assert.True(t, products.get("PAN-7").HasImages)
}

func TestProcessAndUploadWritesManifest(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "good.jpg", "ok")
	bad := writeSource(t, dir, "bad.jpg", "corrupt bytes")

	processor, _ := newTestProcessor(t, newMemStore(), newMemProducts(), &mapFetcher{})

	ok := product("OK-1", "WMF")
	ok.ImageSources = []string{good}
	broken := product("BAD-1", "WMF")
	broken.ImageSources = []string{bad}
	empty := product("NONE-1", "WMF")
	noSKU := product("", "WMF")
	noSKU.ImageSources = []string{good}

	outputRoot := filepath.Join(t.TempDir(), "out")
	report, err := processor.ProcessAndUpload(context.Background(),
		[]domain.Product{ok, broken, empty, noSKU}, outputRoot, ProcessOptions{BatchSize: 2, BatchDelay: -1})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, "all image sources failed", report.Results[1].Reason)
	assert.Contains(t, report.Results[1].SourceErrors[0], "decode")
	assert.Equal(t, "no image sources", report.Results[2].Reason)
	assert.Equal(t, "missing SKU", report.Results[3].Reason)

	raw, err := os.ReadFile(filepath.Join(outputRoot, ManifestFileName))
	require.NoError(t, err)

	var manifest ProcessReport
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, 4, manifest.Total)
	assert.Equal(t, 1, manifest.Processed)
	assert.Equal(t, 3, manifest.Failed)
	assert.Equal(t, report.RunID, manifest.RunID)
}

func TestProcessAndUploadAbortsOnFatalUpload(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.jpg", "ok")

	store := newMemStore()
	store.putErr = e.Fatal("minio.Put", e.ErrBucketNotFound)
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	item := product("A-1", "WMF")
	item.ImageSources = []string{src}

	report, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, e.ErrBucketNotFound)
}

func TestProcessAndUploadRespectsVariantOverride(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.jpg", "ok")

	store := newMemStore()
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	item := product("A-1", "WMF")
	item.ImageSources = []string{src}

	opts := ProcessOptions{
		BatchDelay: -1,
		Transform:  TransformOptions{Variants: []VariantSpec{{Suffix: "_64x64", Width: 64, Height: 64}}},
	}
	_, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", opts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"brand-images/wmf/a-1_1.webp",
		"brand-images/wmf/a-1_1_64x64.webp",
	}, store.keys())
}

func TestTempNamePart(t *testing.T) {
	assert.Equal(t, "abc_1-2", tempNamePart(" ABC/1-2 "))
}

func TestProcessAndUploadRejectsPathLikeSKU(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.jpg", "ok")

	store := newMemStore()
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	nested := product("AB/12", "WMF")
	nested.ImageSources = []string{src}
	escape := product("../../escape", "WMF")
	escape.ImageSources = []string{src}

	base := t.TempDir()
	outputRoot := filepath.Join(base, "out", "run")
	report, err := processor.ProcessAndUpload(context.Background(),
		[]domain.Product{nested, escape}, outputRoot, ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 2, report.Failed)
	for _, res := range report.Results {
		assert.Equal(t, ProcessStatusFailed, res.Status)
		assert.Equal(t, e.ErrInvalidSKU.Error(), res.Reason)
		assert.Empty(t, res.Uploaded)
	}

	_, err = os.Stat(filepath.Join(outputRoot, ManifestFileName))
	require.NoError(t, err)

	assert.Empty(t, store.keys())

	// вне outputRoot ничего не появилось
	entries, err := os.ReadDir(filepath.Join(base, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run", entries[0].Name())
	_, err = os.Stat(filepath.Join(base, "escape_1.webp"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessAndUploadLocalWriteFailureIsPerProduct(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.jpg", "ok")

	store := newMemStore()
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	outputRoot := t.TempDir()
	// каталог на месте файла: запись основного изображения A-1 падает
	require.NoError(t, os.MkdirAll(filepath.Join(outputRoot, "wmf", "a-1_1.webp"), 0o755))

	blocked := product("A-1", "WMF")
	blocked.ImageSources = []string{src}
	fine := product("B-1", "WMF")
	fine.ImageSources = []string{src}

	report, err := processor.ProcessAndUpload(context.Background(),
		[]domain.Product{blocked, fine}, outputRoot, ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	assert.Equal(t, ProcessStatusFailed, report.Results[0].Status)
	assert.Equal(t, "all image sources failed", report.Results[0].Reason)
	require.Len(t, report.Results[0].SourceErrors, 1)
	assert.Contains(t, report.Results[0].SourceErrors[0], "write output")
	assert.Equal(t, ProcessStatusProcessed, report.Results[1].Status)

	_, err = os.Stat(filepath.Join(outputRoot, ManifestFileName))
	assert.NoError(t, err)
}

func TestProcessAndUploadReadsBucketSources(t *testing.T) {
	store := newMemStore()
	store.objects["incoming/wmf/pan.jpg"] = []byte("stored-pan")
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	item := product("PAN-1", "WMF")
	item.ImageSources = []string{
		"s3://products/incoming/wmf/pan.jpg",
		"s3://products/incoming/wmf/missing.jpg",
		"s3://other-bucket/incoming/wmf/pan.jpg",
	}

	report, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, ProcessStatusProcessed, res.Status)
	assert.Equal(t, 1, res.ImageCount)
	require.Len(t, res.SourceErrors, 2)
	assert.Contains(t, res.SourceErrors[0], "missing.jpg")
	assert.Contains(t, res.SourceErrors[1], "other-bucket")

	data, err := store.Get(context.Background(), "brand-images/wmf/pan-1_1.webp")
	require.NoError(t, err)
	assert.Equal(t, "webp:stored-pan", string(data))
}

func TestProcessAndUploadRemovesPartialUploads(t *testing.T) {
	dir := t.TempDir()
	first := writeSource(t, dir, "first.jpg", "one")
	second := writeSource(t, dir, "second.jpg", "two")

	store := newMemStore()
	store.putErrs["brand-images/wmf/a-1_2_150x150.webp"] = e.Transient("minio.Put", errors.New("connection reset"))
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	item := product("A-1", "WMF")
	item.ImageSources = []string{first, second}

	report, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, ProcessStatusProcessed, res.Status)
	assert.Equal(t, 1, res.ImageCount)
	require.Len(t, res.SourceErrors, 1)
	assert.Empty(t, res.Orphaned)

	assert.Equal(t, []string{
		"brand-images/wmf/a-1_1.webp",
		"brand-images/wmf/a-1_1_150x150.webp",
		"brand-images/wmf/a-1_1_400x400.webp",
	}, store.keys())
	assert.Equal(t, []string{
		"brand-images/wmf/a-1_2.webp",
		"brand-images/wmf/a-1_2_400x400.webp",
	}, store.deleted)
}

func TestProcessAndUploadReportsOrphanedUploads(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.jpg", "one")

	store := newMemStore()
	store.putErrs["brand-images/wmf/a-1_1_150x150.webp"] = e.Transient("minio.Put", errors.New("connection reset"))
	store.delErrs["brand-images/wmf/a-1_1.webp"] = e.Transient("minio.Delete", errors.New("connection reset"))
	processor, _ := newTestProcessor(t, store, newMemProducts(), &mapFetcher{})

	item := product("A-1", "WMF")
	item.ImageSources = []string{src}

	report, err := processor.ProcessAndUpload(context.Background(), []domain.Product{item}, "", ProcessOptions{BatchDelay: -1})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, ProcessStatusFailed, res.Status)
	assert.Equal(t, []string{"brand-images/wmf/a-1_1.webp"}, res.Orphaned)
	assert.Equal(t, []string{"brand-images/wmf/a-1_1_400x400.webp"}, store.deleted)
}
