package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/brandkey"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/DRSN-tech/brand-images/pkg/ttlcache"
	"github.com/google/uuid"
)

const (
	DefaultProcessBatchSize  = 5
	DefaultProcessBatchDelay = time.Second
	DefaultDownloadTimeout   = 30 * time.Second

	// ManifestFileName — имя отчёта, который пишется в outputRoot.
	ManifestFileName = "manifest.json"

	webpContentType = "image/webp"

	// blobSourceScheme — источник из собственного бакета: s3://{bucket}/{key}.
	blobSourceScheme = "s3://"
)

// Processor скачивает исходные изображения, преобразует их, загружает в хранилище
// и записывает итоговый список изображений товара.
type Processor struct {
	store       BlobStore
	transformer ImageTransformer
	fetcher     SourceFetcher
	locator     AssetLocator
	recorder    ImageRecorder
	cache       ttlcache.Cache[CachedMatch]
	metrics     PipelineMetrics
	tempDir     string
	clock       func() time.Time
	logger      logger.Logger
}

// NewProcessor создаёт Processor. tempDir пустой — используется системный каталог, cache и metrics могут быть nil.
// cache — тот же кэш сопоставлений, что у Matcher: после записи товара его запись сбрасывается.
func NewProcessor(store BlobStore, transformer ImageTransformer, fetcher SourceFetcher, locator AssetLocator,
	recorder ImageRecorder, cache ttlcache.Cache[CachedMatch], metrics PipelineMetrics, tempDir string,
	clock func() time.Time, logger logger.Logger) *Processor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}

	return &Processor{
		store:       store,
		transformer: transformer,
		fetcher:     fetcher,
		locator:     locator,
		recorder:    recorder,
		cache:       cache,
		metrics:     metrics,
		tempDir:     tempDir,
		clock:       clock,
		logger:      logger,
	}
}

// ProcessAndUpload обрабатывает товары пакетами. Если outputRoot не пуст, туда пишутся
// результаты ({outputRoot}/{manufacturerKey}/...) и manifest.json.
func (p *Processor) ProcessAndUpload(ctx context.Context, products []domain.Product, outputRoot string, opts ProcessOptions) (*ProcessReport, error) {
	const op = "Processor.ProcessAndUpload"

	opts = p.withDefaults(opts)
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID)

	workDir, err := os.MkdirTemp(p.tempDir, "brand-images-"+runID[:8]+"-*")
	if err != nil {
		return nil, e.Fatal(op, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warnf("remove temp dir %s: %v", workDir, err)
		}
	}()

	results := make([]ProcessResult, len(products))
	onBatch := func(size int) { p.metrics.ObserveBatch("process", size) }

	err = runBatches(ctx, len(products), opts.BatchSize, opts.BatchDelay, onBatch, func(ctx context.Context, i int) error {
		itemLog := log.With("sku", products[i].SKU)
		res, err := p.processOne(ctx, itemLog, runID, workDir, outputRoot, &products[i], opts)
		if err != nil {
			if e.IsFatal(err) {
				return err
			}
			res.Status = ProcessStatusFailed
			res.Reason = err.Error()
		}

		if res.Status == ProcessStatusFailed {
			itemLog.Warnf("process failed: %s", res.Reason)
		}

		results[i] = res
		p.metrics.ObserveProcess(res.Status)
		return nil
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	report := &ProcessReport{
		RunID:       runID,
		Total:       len(products),
		Results:     results,
		GeneratedAt: p.clock().UTC(),
	}
	for _, res := range results {
		if res.Status == ProcessStatusProcessed {
			report.Processed++
		} else {
			report.Failed++
		}
	}

	if outputRoot != "" {
		if err := writeManifest(outputRoot, report); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	log.Infof("process run: total=%d processed=%d failed=%d",
		report.Total, report.Processed, report.Failed)

	return report, nil
}

func (p *Processor) processOne(ctx context.Context, log logger.Logger, runID, workDir, outputRoot string,
	product *domain.Product, opts ProcessOptions) (ProcessResult, error) {
	const op = "Processor.processOne"

	res := ProcessResult{
		SKU:             strings.TrimSpace(product.SKU),
		ManufacturerKey: brandkey.Normalize(product.Manufacturer),
		Status:          ProcessStatusFailed,
	}

	// SKU становится частью имени объекта и локального файла
	if err := domain.ValidateSKU(res.SKU); err != nil {
		res.Reason = err.Error()
		return res, nil
	}
	if len(product.ImageSources) == 0 {
		res.Reason = e.ErrNoImageSources.Error()
		return res, nil
	}

	var outDir string
	if outputRoot != "" {
		outDir = filepath.Join(outputRoot, res.ManufacturerKey)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return res, e.Fatal(op, err)
		}
	}

	for i, src := range product.ImageSources {
		uploaded, err := p.processSource(ctx, log, workDir, outDir, res.ManufacturerKey, res.SKU, i+1, src, opts)
		if err != nil {
			res.Orphaned = append(res.Orphaned, p.removePartial(ctx, log, uploaded)...)
			if e.IsFatal(err) {
				return res, e.Wrap(op, err)
			}
			res.SourceErrors = append(res.SourceErrors, fmt.Sprintf("%s: %v", src, err))
			continue
		}
		res.Uploaded = append(res.Uploaded, uploaded...)
	}

	if len(res.Uploaded) == 0 {
		res.Reason = e.ErrAllSourcesFailed.Error()
		return res, nil
	}

	images, err := p.locator.Locate(ctx, res.ManufacturerKey, res.SKU)
	if err != nil {
		return res, e.Wrap(op, err)
	}

	fields, err := p.recorder.Record(ctx, NewRecordReq(runID, res.SKU, res.ManufacturerKey, images))
	if err != nil {
		return res, e.Wrap(op, err)
	}
	p.invalidateMatch(ctx, log, res.ManufacturerKey, res.SKU)

	res.Status = ProcessStatusProcessed
	res.ImageCount = fields.ImageCount

	return res, nil
}

// processSource обрабатывает один источник и возвращает ключи загруженных объектов.
// При ошибке возвращаются ключи, загруженные до неё.
func (p *Processor) processSource(ctx context.Context, log logger.Logger, workDir, outDir, manufacturerKey, sku string,
	ordinal int, src string, opts ProcessOptions) ([]string, error) {
	data, err := p.readSource(ctx, log, workDir, sku, ordinal, src, opts.DownloadTimeout)
	if err != nil {
		return nil, err
	}

	result, err := p.transformer.Transform(data, src, opts.Transform)
	if err != nil {
		return nil, err
	}

	files := []outputFile{{name: domain.MainFileName(sku, ordinal), data: result.Main}}
	for _, v := range p.variants(opts.Transform) {
		if b, ok := result.Variants[v.Suffix]; ok {
			files = append(files, outputFile{name: domain.VariantFileName(sku, ordinal, v.Suffix), data: b})
		}
	}

	uploaded := make([]string, 0, len(files))
	for _, f := range files {
		if outDir != "" {
			if err := os.WriteFile(filepath.Join(outDir, f.name), f.data, 0o644); err != nil {
				return uploaded, e.Transient("write output", err)
			}
		}

		key := domain.ObjectKey(manufacturerKey, f.name)
		if err := p.store.Put(ctx, key, f.data, webpContentType); err != nil {
			return uploaded, e.Wrap("upload "+key, err)
		}
		uploaded = append(uploaded, key)
	}

	return uploaded, nil
}

type outputFile struct {
	name string
	data []byte
}

// removePartial удаляет объекты неудавшегося источника и возвращает те, что удалить не получилось.
func (p *Processor) removePartial(ctx context.Context, log logger.Logger, keys []string) []string {
	var orphaned []string
	for _, key := range keys {
		if err := p.store.Delete(ctx, key); err != nil {
			log.Warnf("remove partial upload %s: %v", key, err)
			orphaned = append(orphaned, key)
		}
	}
	return orphaned
}

// invalidateMatch сбрасывает кэш сопоставления, чтобы Matcher увидел новые изображения.
func (p *Processor) invalidateMatch(ctx context.Context, log logger.Logger, manufacturerKey, sku string) {
	if p.cache == nil {
		return
	}
	cacheKey := matchCacheKey(manufacturerKey, sku)
	if err := p.cache.Invalidate(ctx, cacheKey); err != nil {
		log.Warnf("cache invalidate %s: %v", cacheKey, err)
	}
}

// readSource читает источник: объект собственного бакета (s3://), локальный файл
// или удалённый URL. Удалённый источник скачивается во временный файл, который удаляется в любом случае.
func (p *Processor) readSource(ctx context.Context, log logger.Logger, workDir, sku string, ordinal int, src string,
	timeout time.Duration) ([]byte, error) {
	if key, ok := p.blobSourceKey(src); ok {
		return p.store.Get(ctx, key)
	}
	if strings.HasPrefix(strings.ToLower(src), blobSourceScheme) {
		return nil, e.Transient("read source", fmt.Errorf("%w: %s", e.ErrObjectNotFound, src))
	}
	if !isRemote(src) {
		return os.ReadFile(src)
	}

	f, err := os.CreateTemp(workDir, fmt.Sprintf("%s-%d-*", tempNamePart(sku), ordinal))
	if err != nil {
		return nil, e.Fatal("create temp file", err)
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove temp file %s: %v", f.Name(), err)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.fetcher.Fetch(fetchCtx, src, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return os.ReadFile(f.Name())
}

func (p *Processor) variants(opts TransformOptions) []VariantSpec {
	if opts.Variants != nil {
		return opts.Variants
	}
	return p.transformer.Options().Variants
}

func (p *Processor) withDefaults(opts ProcessOptions) ProcessOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultProcessBatchSize
	}
	// отрицательная пауза отключает задержку между пакетами
	if opts.BatchDelay == 0 {
		opts.BatchDelay = DefaultProcessBatchDelay
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	return opts
}

// blobSourceKey извлекает ключ из s3://{bucket}/{key}. ok=false для чужого бакета или пустого ключа.
func (p *Processor) blobSourceKey(src string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(src), blobSourceScheme) {
		return "", false
	}

	bucket, key, found := strings.Cut(src[len(blobSourceScheme):], "/")
	if !found || key == "" || bucket != p.store.Bucket() {
		return "", false
	}

	return key, true
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// tempNamePart оставляет в SKU только символы, безопасные для имени файла.
func tempNamePart(sku string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, domain.SKUFilePrefix(sku))
}

func writeManifest(outputRoot string, report *ProcessReport) error {
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return e.Fatal("create output root", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(outputRoot, ManifestFileName), data, 0o644); err != nil {
		return e.Fatal("write manifest", err)
	}

	return nil
}
