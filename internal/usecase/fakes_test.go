package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/DRSN-tech/brand-images/pkg/ttlcache"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// memStore — BlobStore в памяти.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	public   map[string]bool
	listErr  error
	statErrs map[string]error
	putErr   error
	putErrs  map[string]error
	delErrs  map[string]error
	deleted  []string
}

func newMemStore() *memStore {
	return &memStore{
		objects:  map[string][]byte{},
		public:   map[string]bool{},
		statErrs: map[string]error{},
		putErrs:  map[string]error{},
		delErrs:  map[string]error{},
	}
}

func (s *memStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []ObjectInfo
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	// порядок листинга не гарантирован, Locator обязан сортировать сам
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })

	return out, nil
}

func (s *memStore) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.statErrs[key]; err != nil {
		return nil, err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, e.ErrObjectNotFound
	}

	return &ObjectInfo{Key: key, Size: int64(len(data)), ContentType: "image/webp", LastModified: testNow}, nil
}

func (s *memStore) MakePublic(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public[key] = true
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, e.ErrObjectNotFound
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return s.putErr
	}
	if err := s.putErrs[key]; err != nil {
		return err
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.delErrs[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) PublicURL(key string) string {
	return "http://cdn.local/products/" + key
}

func (s *memStore) Bucket() string {
	return "products"
}

func (s *memStore) put(keys ...string) {
	for _, key := range keys {
		_ = s.Put(context.Background(), key, []byte("img"), webpContentType)
	}
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.objects))
	for key := range s.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// memProducts — ProductRepository в памяти.
type memProducts struct {
	mu       sync.Mutex
	items    map[string]*domain.Product
	findErrs map[string]error
	upserts  int
}

func newMemProducts(products ...*domain.Product) *memProducts {
	r := &memProducts{items: map[string]*domain.Product{}, findErrs: map[string]error{}}
	for _, p := range products {
		r.items[p.SKU] = p
	}
	return r
}

func (r *memProducts) FindBySku(_ context.Context, sku string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.findErrs[sku]; err != nil {
		return nil, err
	}
	p, ok := r.items[sku]
	if !ok {
		return nil, e.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProducts) UpsertImages(_ context.Context, sku string, fields *domain.ImageFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upserts++
	p, ok := r.items[sku]
	if !ok {
		p = &domain.Product{SKU: sku}
		r.items[sku] = p
	}
	updated := fields.LastUpdated
	p.Images = fields.Images
	p.ImageCount = fields.ImageCount
	p.HasImages = fields.HasImages
	p.NormalizedManufacturer = fields.NormalizedManufacturer
	p.LastUpdated = &updated

	return nil
}

func (r *memProducts) ListWithoutImages(_ context.Context, limit int) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Product
	for _, p := range r.items {
		if !p.HasImages && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProducts) get(sku string) *domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[sku]
}

type memSyncLog struct {
	mu      sync.Mutex
	entries []SyncLogEntry
	err     error
}

func (l *memSyncLog) Append(_ context.Context, entry *SyncLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, *entry)
	return nil
}

// directTx выполняет fn без транзакции.
type directTx struct{}

func (directTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []MatchEvent
	err    error
}

func (p *recordingPublisher) PublishMatch(_ context.Context, event *MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, *event)
	return p.err
}

// countingLocator считает вызовы Locate.
type countingLocator struct {
	mu    sync.Mutex
	next  AssetLocator
	calls int
}

func (l *countingLocator) Locate(ctx context.Context, manufacturerKey string, sku string) ([]domain.ImageAsset, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.next.Locate(ctx, manufacturerKey, sku)
}

func (l *countingLocator) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// fakeTransformer возвращает детерминированные байты вместо реального кодирования.
type fakeTransformer struct {
	opts TransformOptions
}

func newFakeTransformer() *fakeTransformer {
	return &fakeTransformer{opts: TransformOptions{
		Variants: []VariantSpec{
			{Suffix: "_400x400", Width: 400, Height: 400},
			{Suffix: "_150x150", Width: 150, Height: 150},
		},
	}}
}

func (t *fakeTransformer) Transform(source []byte, name string, opts TransformOptions) (*TransformResult, error) {
	if bytes.HasPrefix(source, []byte("corrupt")) {
		return nil, e.NewProcessingError(name, "decode", errors.New("unknown format"))
	}

	variants := opts.Variants
	if variants == nil {
		variants = t.opts.Variants
	}

	res := &TransformResult{Main: append([]byte("webp:"), source...), Variants: map[string][]byte{}}
	for _, v := range variants {
		res.Variants[v.Suffix] = []byte(fmt.Sprintf("webp%s:%s", v.Suffix, source))
	}
	return res, nil
}

func (t *fakeTransformer) Options() TransformOptions {
	return t.opts
}

// mapFetcher отдаёт тело по URL.
type mapFetcher struct {
	bodies map[string]string
}

func (f *mapFetcher) Fetch(_ context.Context, url string, w io.Writer) error {
	body, ok := f.bodies[url]
	if !ok {
		return e.Transient("fetch", fmt.Errorf("GET %s: status 404", url))
	}
	_, err := io.WriteString(w, body)
	return err
}

func newCache() ttlcache.Cache[CachedMatch] {
	mem, err := ttlcache.NewMemory[CachedMatch](64, ttlcache.WithClock[CachedMatch](testClock))
	if err != nil {
		panic(err)
	}
	return mem
}

type pipeline struct {
	store     *memStore
	products  *memProducts
	syncLog   *memSyncLog
	publisher *recordingPublisher
	locator   *countingLocator
	recorder  *Recorder
	matcher   *Matcher
	processor *Processor
}

func newPipeline(store *memStore, products *memProducts) *pipeline {
	log := logger.NewNop()
	transformer := newFakeTransformer()

	p := &pipeline{
		store:     store,
		products:  products,
		syncLog:   &memSyncLog{},
		publisher: &recordingPublisher{},
	}
	p.locator = &countingLocator{next: NewLocator(store, transformer.Options().VariantSuffixes(), log)}
	p.recorder = NewRecorder(products, p.syncLog, directTx{}, p.publisher, testClock, log)
	cache := newCache()
	p.matcher = NewMatcher(products, p.locator, p.recorder, cache, nil,
		MatcherOptions{BatchSize: 3, BatchDelay: -1}, log)
	p.processor = NewProcessor(store, transformer, &mapFetcher{}, p.locator, p.recorder, cache, nil, "", testClock, log)

	return p
}
