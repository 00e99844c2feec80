package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	config "github.com/DRSN-tech/brand-images/internal/cfg"
	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/internal/infrastructure/download"
	"github.com/DRSN-tech/brand-images/internal/infrastructure/imageproc"
	"github.com/DRSN-tech/brand-images/internal/infrastructure/kafka"
	"github.com/DRSN-tech/brand-images/internal/infrastructure/metrics"
	s3Repo "github.com/DRSN-tech/brand-images/internal/repository/minio"
	"github.com/DRSN-tech/brand-images/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/brand-images/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/brand-images/internal/repository/redis"
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/DRSN-tech/brand-images/pkg/clients"
	"github.com/DRSN-tech/brand-images/pkg/closer"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/DRSN-tech/brand-images/pkg/postgres"
	"github.com/DRSN-tech/brand-images/pkg/tr"
	"github.com/DRSN-tech/brand-images/pkg/ttlcache"
	"github.com/jimlawless/whereami"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MatchReportFileName — имя отчёта режима match в OutputRoot.
const MatchReportFileName = "match_report.json"

// App — одноразовый запуск конвейера: match или process.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	products  usecase.ProductRepository
	matcher   usecase.BatchMatcher
	processor usecase.BatchProcessor
	transform usecase.TransformOptions

	registry *prometheus.Registry
}

// NewApp поднимает все зависимости. При ошибке уже открытые ресурсы закрываются.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   log,
		closer:   closer.NewCloser(0, log),
		registry: prometheus.NewRegistry(),
	}

	if err := a.init(); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if cerr := a.closer.Close(ctx); cerr != nil {
			log.Warnf("cleanup after failed init: %v", cerr)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return a, nil
}

func (a *App) init() error {
	db, err := initPGDB(a.logger, a.cfg)
	if err != nil {
		return err
	}
	a.closer.Add("postgres", db.Close)

	trManager := tr.NewManager(db.Pool, a.logger)
	productRepo := pgdb.NewProductRepo(db.Pool, pgdbConv.NewProductConverterImpl())
	syncLogRepo := pgdb.NewSyncLogRepo(db.Pool, pgdbConv.NewSyncLogConverterImpl())
	a.products = productRepo

	imageRepo, err := a.initBlobStore()
	if err != nil {
		return err
	}

	pipelineMetrics, err := metrics.NewPipeline(a.registry)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache, err := a.initCache(pipelineMetrics)
	if err != nil {
		return err
	}

	var publisher usecase.MatchPublisher
	if a.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(a.logger, a.cfg.Kafka)
		if err := producer.EnsureTopic(10 * time.Second); err != nil {
			// публикация событий не обязательна для конвейера
			a.logger.Warnf("kafka topic %s not ensured: %v", a.cfg.Kafka.Topic, err)
		}
		a.closer.Add("kafka", producer.Close)
		publisher = producer
	}

	a.transform = transformOptions(a.cfg.Transform)
	engine := imageproc.NewEngine(a.transform, a.logger)

	fetcher := download.NewFetcher(&http.Client{}, download.Config{
		RPS:         a.cfg.Processor.DownloadRPS,
		Burst:       a.cfg.Processor.DownloadBurst,
		MaxAttempts: a.cfg.Processor.DownloadAttempts,
		MaxBytes:    a.cfg.Processor.MaxDownloadBytes,
	}, a.logger)

	locator := usecase.NewLocator(imageRepo, engine.Options().VariantSuffixes(), a.logger)
	recorder := usecase.NewRecorder(productRepo, syncLogRepo, trManager, publisher, time.Now, a.logger)

	a.matcher = usecase.NewMatcher(productRepo, locator, recorder, cache, pipelineMetrics, usecase.MatcherOptions{
		BatchSize:  a.cfg.Matcher.BatchSize,
		BatchDelay: a.cfg.Matcher.BatchDelay,
		CacheTTL:   a.cfg.Redis.CacheTTL,
	}, a.logger)

	a.processor = usecase.NewProcessor(imageRepo, engine, fetcher, locator, recorder, cache, pipelineMetrics,
		a.cfg.Processor.TempDir, time.Now, a.logger)

	return nil
}

func (a *App) initBlobStore() (*s3Repo.ImageRepo, error) {
	minioClient, err := clients.NewMinIOClient(a.cfg.Minio)
	if err != nil {
		a.logger.Errorf(err, "failed to initialize minio client")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := clients.EnsureBucket(ctx, minioClient, a.cfg.Minio.BucketName, a.cfg.Minio.Region); err != nil {
		a.logger.Errorf(err, "failed to initialize MinIO bucket")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return s3Repo.NewImageRepo(minioClient, a.cfg.Minio), nil
}

// initCache собирает двухуровневый кэш сопоставлений. Без Redis работает только память процесса.
func (a *App) initCache(m *metrics.Pipeline) (ttlcache.Cache[usecase.CachedMatch], error) {
	memory, err := ttlcache.NewMemory[usecase.CachedMatch](a.cfg.Matcher.MemoryCacheSize)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var persisted ttlcache.Tier[usecase.CachedMatch]
	if a.cfg.Redis.Enabled {
		redisClient := clients.NewRedisClient(a.cfg.Redis)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx); err != nil {
			_ = redisClient.Close(ctx)
			a.logger.Errorf(err, "failed to connect to redis")
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		a.closer.Add("redis", redisClient.Close)
		persisted = redis.NewCacheRepo[usecase.CachedMatch](redisClient, a.cfg.Redis.CacheNamespace, time.Now, a.logger)
	} else {
		a.logger.Infof("redis disabled, match cache is process-local")
	}

	return ttlcache.NewTiered[usecase.CachedMatch](memory, persisted, time.Now, m.CacheObserver()), nil
}

// Run выполняет выбранный режим и закрывает ресурсы. SIGINT/SIGTERM отменяют контекст конвейера.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.startMetricsServer()

	var runErr error
	switch a.cfg.App.Mode {
	case config.ModeProcess:
		runErr = a.runProcess(ctx)
	default:
		runErr = a.runMatch(ctx)
	}
	if runErr != nil {
		a.logger.Errorf(runErr, "%s run failed", a.cfg.App.Mode)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("shutdown: %v", err)
	}

	a.logger.Infof("Application shutdown complete")
	return runErr
}

func (a *App) runMatch(ctx context.Context) error {
	const op = "App.runMatch"

	products, err := a.products.ListWithoutImages(ctx, a.cfg.App.MatchLimit)
	if err != nil {
		return e.Wrap(op, err)
	}
	a.logger.Infof("%d products without images", len(products))

	report, err := a.matcher.MatchAll(ctx, products)
	if err != nil {
		return e.Wrap(op, err)
	}

	if a.cfg.App.OutputRoot == "" {
		return nil
	}

	if err := writeJSON(filepath.Join(a.cfg.App.OutputRoot, MatchReportFileName), report); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

func (a *App) runProcess(ctx context.Context) error {
	const op = "App.runProcess"

	products, err := readProducts(a.cfg.App.InputFile)
	if err != nil {
		return e.Wrap(op, err)
	}

	report, err := a.processor.ProcessAndUpload(ctx, products, a.cfg.App.OutputRoot, usecase.ProcessOptions{
		Transform:       a.transform,
		BatchSize:       a.cfg.Processor.BatchSize,
		BatchDelay:      a.cfg.Processor.BatchDelay,
		DownloadTimeout: a.cfg.Processor.DownloadTimeout,
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	a.logger.Infof("process run %s: %d processed, %d failed", report.RunID, report.Processed, report.Failed)
	return nil
}

func (a *App) startMetricsServer() {
	if a.cfg.App.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              a.cfg.App.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Infof("metrics server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf(err, "metrics server failed")
		}
	}()

	a.closer.Add("metrics server", srv.Shutdown)
}

func initPGDB(logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(context.Background(), cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		_ = db.Close(context.Background())
		logger.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}

func transformOptions(c *config.TransformCfg) usecase.TransformOptions {
	opts := usecase.TransformOptions{
		Padding:   c.Padding,
		Quality:   c.Quality,
		MaxWidth:  c.MaxWidth,
		MaxHeight: c.MaxHeight,
	}

	if c.Variants != nil {
		opts.Variants = make([]usecase.VariantSpec, 0, len(c.Variants))
		for _, v := range c.Variants {
			opts.Variants = append(opts.Variants, usecase.VariantSpec{Suffix: v.Suffix, Width: v.Width, Height: v.Height})
		}
	}

	return opts
}

// readProducts читает JSON-массив товаров для режима process.
func readProducts(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, e.Validation("readProducts", err)
	}

	return products, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return os.WriteFile(path, data, 0o644)
}
