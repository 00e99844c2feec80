package usecase

import (
	"context"
	"errors"
	"fmt"
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
	DefaultMatchBatchSize  = 10
	DefaultMatchBatchDelay = 100 * time.Millisecond
)

type MatcherOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	CacheTTL   time.Duration
}

// Matcher сопоставляет товары с изображениями: кэш, затем запись в БД, затем хранилище.
type Matcher struct {
	products ProductRepository
	locator  AssetLocator
	recorder ImageRecorder
	cache    ttlcache.Cache[CachedMatch]
	metrics  PipelineMetrics
	opts     MatcherOptions
	logger   logger.Logger
}

// NewMatcher создаёт Matcher. metrics может быть nil.
func NewMatcher(products ProductRepository, locator AssetLocator, recorder ImageRecorder,
	cache ttlcache.Cache[CachedMatch], metrics PipelineMetrics, opts MatcherOptions, logger logger.Logger) *Matcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultMatchBatchSize
	}
	// отрицательная пауза отключает задержку между пакетами
	if opts.BatchDelay == 0 {
		opts.BatchDelay = DefaultMatchBatchDelay
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = ttlcache.DefaultTTL
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Matcher{
		products: products,
		locator:  locator,
		recorder: recorder,
		cache:    cache,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
	}
}

// MatchAll сопоставляет все товары. Results идут в порядке products,
// Matched+Unmatched+Errors == len(products). Фатальная ошибка прерывает вызов без отчёта.
func (m *Matcher) MatchAll(ctx context.Context, products []domain.Product) (*MatchReport, error) {
	const op = "Matcher.MatchAll"

	runID := uuid.NewString()
	log := m.logger.With("run_id", runID)
	results := make([]ProductMatch, len(products))

	onBatch := func(size int) { m.metrics.ObserveBatch("match", size) }

	err := runBatches(ctx, len(products), m.opts.BatchSize, m.opts.BatchDelay, onBatch, func(ctx context.Context, i int) error {
		res, err := m.matchOne(ctx, runID, &products[i])
		if err != nil {
			if e.IsFatal(err) {
				return err
			}
			log.With("sku", products[i].SKU).Warnf("match failed: %v", err)
			res = newErrorMatch(strings.TrimSpace(products[i].SKU), brandkey.Normalize(products[i].Manufacturer), err)
		}

		results[i] = res
		m.metrics.ObserveMatch(res.Status, res.Source)
		return nil
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	report := &MatchReport{RunID: runID, Results: results}
	for _, res := range results {
		switch res.Status {
		case MatchStatusMatched:
			report.Matched++
		case MatchStatusUnmatched:
			report.Unmatched++
		default:
			report.Errors++
		}
	}

	log.Infof("match run: matched=%d unmatched=%d errors=%d",
		report.Matched, report.Unmatched, report.Errors)

	return report, nil
}

func (m *Matcher) matchOne(ctx context.Context, runID string, p *domain.Product) (ProductMatch, error) {
	const op = "Matcher.matchOne"

	key := brandkey.Normalize(p.Manufacturer)
	sku := strings.TrimSpace(p.SKU)
	if err := domain.ValidateSKU(sku); err != nil {
		return newUnmatched(sku, key, MatchSourceNone, err.Error()), nil
	}

	cacheKey := matchCacheKey(key, sku)
	if cached, ok := m.cacheGet(ctx, cacheKey); ok && len(cached.Images) > 0 {
		return newMatched(sku, key, MatchSourceCache, cached.Images), nil
	}

	stored, err := m.products.FindBySku(ctx, sku)
	switch {
	case err == nil:
		if stored.HasCompleteImages() {
			m.cacheSet(ctx, cacheKey, key, stored.Images)
			return newMatched(sku, key, MatchSourceDatabase, stored.Images), nil
		}
	case errors.Is(err, e.ErrProductNotFound):
	default:
		return ProductMatch{}, e.Wrap(op, err)
	}

	images, err := m.locator.Locate(ctx, key, sku)
	if err != nil {
		return ProductMatch{}, e.Wrap(op, err)
	}

	fields, err := m.recorder.Record(ctx, NewRecordReq(runID, sku, key, images))
	if err != nil {
		return ProductMatch{}, e.Wrap(op, err)
	}

	if !fields.HasImages {
		return newUnmatched(sku, key, MatchSourceLocator, e.ErrNoImagesFound.Error()), nil
	}

	m.cacheSet(ctx, cacheKey, key, fields.Images)
	return newMatched(sku, key, MatchSourceLocator, fields.Images), nil
}

// cacheGet считает ошибку кэша промахом.
func (m *Matcher) cacheGet(ctx context.Context, cacheKey string) (CachedMatch, bool) {
	cached, ok, err := m.cache.Get(ctx, cacheKey)
	if err != nil {
		m.logger.Warnf("cache get %s: %v", cacheKey, err)
		return CachedMatch{}, false
	}
	return cached, ok
}

func (m *Matcher) cacheSet(ctx context.Context, cacheKey, manufacturerKey string, images []domain.ImageAsset) {
	value := CachedMatch{ManufacturerKey: manufacturerKey, Images: images}
	if err := m.cache.Set(ctx, cacheKey, value, m.opts.CacheTTL); err != nil {
		m.logger.Warnf("cache set %s: %v", cacheKey, err)
	}
}

// matchCacheKey — ключ кэша сопоставлений: match:{manufacturerKey}:{sku}. Processor сбрасывает его после записи.
func matchCacheKey(manufacturerKey, sku string) string {
	return fmt.Sprintf("match:%s:%s", manufacturerKey, domain.SKUFilePrefix(sku))
}
