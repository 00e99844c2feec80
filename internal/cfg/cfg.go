package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

const (
	ModeMatch   = "match"
	ModeProcess = "process"
)

type Config struct {
	App       *AppCfg
	Minio     *MinIOCfg
	Db        *PGDBCfg
	Redis     *RedisCfg
	Kafka     *KafkaCfg
	Matcher   *MatcherCfg
	Processor *ProcessorCfg
	Transform *TransformCfg
}

type AppCfg struct {
	Mode            string        // match | process
	InputFile       string        // JSON-список товаров для режима process
	OutputRoot      string        // каталог для локальных копий и manifest.json
	MatchLimit      int           // сколько товаров без изображений брать в режиме match
	MetricsAddr     string        // пусто — метрики не публикуются
	ShutdownTimeout time.Duration // время на закрытие ресурсов
}

type KafkaCfg struct {
	Enabled           bool
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type MinIOCfg struct {
	Endpoint      string // Адрес конечной точки Minio
	BucketName    string // Название бакета с изображениями
	RootUser      string // Имя пользователя для доступа к Minio
	RootPassword  string // Пароль для доступа к Minio
	UseSSL        bool
	Region        string
	PublicBaseURL string // База публичных ссылок; пусто — схема и Endpoint
}

type PGDBCfg struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MaxConns      int32
	MigrationsDir string
}

type RedisCfg struct {
	Enabled        bool
	Addr           string
	Password       string
	User           string
	DB             int
	MaxRetries     int
	DialTimeout    time.Duration
	Timeout        time.Duration
	CacheNamespace string
	CacheTTL       time.Duration
}

type MatcherCfg struct {
	BatchSize       int
	BatchDelay      time.Duration
	MemoryCacheSize int
}

type ProcessorCfg struct {
	BatchSize        int
	BatchDelay       time.Duration
	DownloadTimeout  time.Duration
	DownloadRPS      float64
	DownloadBurst    int
	DownloadAttempts int
	MaxDownloadBytes int64
	TempDir          string
}

type VariantCfg struct {
	Suffix string
	Width  int
	Height int
}

type TransformCfg struct {
	Padding   int
	Quality   int
	MaxWidth  int
	MaxHeight int
	Variants  []VariantCfg // nil — размеры по умолчанию
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Переменные из файла .env (если он есть) не перекрывают уже заданные в окружении.
func Load(log logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("failed to read .env: %v", err)
	}

	app, err := loadAppCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	matcher, err := loadMatcherCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	processor, err := loadProcessorCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	transform, err := loadTransformCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		App:       app,
		Minio:     minio,
		Db:        db,
		Redis:     redis,
		Kafka:     kafka,
		Matcher:   matcher,
		Processor: processor,
		Transform: transform,
	}, nil
}

func loadAppCfg(log logger.Logger) (*AppCfg, error) {
	const (
		defaultMode            = ModeMatch
		defaultMatchLimit      = 1000
		defaultShutdownTimeout = 10 * time.Second
	)

	mode := strings.ToLower(getEnvOrDefault("APP_MODE", defaultMode))
	if mode != ModeMatch && mode != ModeProcess {
		err := fmt.Errorf("%w: APP_MODE=%q", e.ErrIncorrectEnvVariable, mode)
		log.Errorf(err, "invalid APP_MODE")
		return nil, err
	}

	inputFile := getEnv("INPUT_FILE")
	if mode == ModeProcess && inputFile == "" {
		err := fmt.Errorf("INPUT_FILE is required in process mode")
		log.Errorf(err, "missing INPUT_FILE")
		return nil, err
	}

	matchLimit, err := parseIntEnv("MATCH_LIMIT", defaultMatchLimit)
	if err != nil {
		log.Errorf(err, "invalid MATCH_LIMIT")
		return nil, err
	}

	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		log.Errorf(err, "invalid SHUTDOWN_TIMEOUT")
		return nil, err
	}

	return &AppCfg{
		Mode:            mode,
		InputFile:       inputFile,
		OutputRoot:      getEnv("OUTPUT_ROOT"),
		MatchLimit:      matchLimit,
		MetricsAddr:     getEnv("METRICS_ADDR"),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// loadKafkaCfg: без KAFKA_BROKERS публикация событий отключена.
func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultTopic             = "brand-images.matches"
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
	)

	brokerStr := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokerStr == "" {
		return &KafkaCfg{Enabled: false}, nil
	}

	var brokers []string
	for _, b := range strings.Split(brokerStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Enabled:           len(brokers) > 0,
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL   = false
		defaultEndpoint = "minio:9000"
		defaultBucket   = "products"
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	return &MinIOCfg{
		Endpoint:      getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:    getEnvOrDefault("BUCKET_NAME", defaultBucket),
		RootUser:      getEnv("MINIO_ROOT_USER"),
		RootPassword:  getEnv("MINIO_ROOT_PASSWORD"),
		UseSSL:        useSSL,
		Region:        getEnv("MINIO_REGION"),
		PublicBaseURL: strings.TrimRight(getEnv("MINIO_PUBLIC_BASE_URL"), "/"),
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost          = "localhost"
		defaultPort          = "5432"
		defaultSSLMode       = "disable"
		defaultMaxConns      = 10
		defaultMigrationsDir = "db/migrations"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	maxConns, err := parseIntEnv("POSTGRES_MAX_CONNS", defaultMaxConns)
	if err != nil {
		log.Errorf(err, "invalid POSTGRES_MAX_CONNS")
		return nil, err
	}

	return &PGDBCfg{
		Host:          getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:          getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:          user,
		Password:      password,
		DBName:        dbName,
		SSLMode:       getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MaxConns:      int32(maxConns),
		MigrationsDir: getEnvOrDefault("MIGRATIONS_DIR", defaultMigrationsDir),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultEnabled      = true
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultNamespace    = "brand-images"
		defaultCacheTTL     = 30 * time.Minute
	)

	enabled, err := strconv.ParseBool(getEnvOrDefault("REDIS_ENABLED", strconv.FormatBool(defaultEnabled)))
	if err != nil {
		log.Errorf(err, "invalid REDIS_ENABLED")
		return nil, err
	}

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	cacheTTL, err := parseDurationEnv("CACHE_TTL", defaultCacheTTL)
	if err != nil {
		log.Errorf(err, "invalid CACHE_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Enabled:        enabled,
		Addr:           getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:       getEnv("REDIS_PASSWORD"),
		User:           getEnv("REDIS_USER"),
		DB:             db,
		MaxRetries:     maxRetries,
		DialTimeout:    dialTimeout,
		Timeout:        timeout,
		CacheNamespace: getEnvOrDefault("CACHE_NAMESPACE", defaultNamespace),
		CacheTTL:       cacheTTL,
	}, nil
}

func loadMatcherCfg(log logger.Logger) (*MatcherCfg, error) {
	const (
		defaultBatchSize       = 10
		defaultBatchDelay      = 100 * time.Millisecond
		defaultMemoryCacheSize = 10_000
	)

	batchSize, err := parseIntEnv("MATCH_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		log.Errorf(err, "invalid MATCH_BATCH_SIZE")
		return nil, err
	}

	batchDelay, err := parseDurationEnv("MATCH_BATCH_DELAY", defaultBatchDelay)
	if err != nil {
		log.Errorf(err, "invalid MATCH_BATCH_DELAY")
		return nil, err
	}

	cacheSize, err := parseIntEnv("MEMORY_CACHE_SIZE", defaultMemoryCacheSize)
	if err != nil {
		log.Errorf(err, "invalid MEMORY_CACHE_SIZE")
		return nil, err
	}

	return &MatcherCfg{
		BatchSize:       batchSize,
		BatchDelay:      batchDelay,
		MemoryCacheSize: cacheSize,
	}, nil
}

func loadProcessorCfg(log logger.Logger) (*ProcessorCfg, error) {
	const (
		defaultBatchSize        = 5
		defaultBatchDelay       = time.Second
		defaultDownloadTimeout  = 30 * time.Second
		defaultDownloadRPS      = 5.0
		defaultDownloadBurst    = 5
		defaultDownloadAttempts = 3
		defaultMaxDownloadBytes = 32 << 20
	)

	batchSize, err := parseIntEnv("PROCESS_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		log.Errorf(err, "invalid PROCESS_BATCH_SIZE")
		return nil, err
	}

	batchDelay, err := parseDurationEnv("PROCESS_BATCH_DELAY", defaultBatchDelay)
	if err != nil {
		log.Errorf(err, "invalid PROCESS_BATCH_DELAY")
		return nil, err
	}

	downloadTimeout, err := parseDurationEnv("DOWNLOAD_TIMEOUT", defaultDownloadTimeout)
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_TIMEOUT")
		return nil, err
	}

	rps, err := strconv.ParseFloat(getEnvOrDefault("DOWNLOAD_RPS", strconv.FormatFloat(defaultDownloadRPS, 'f', -1, 64)), 64)
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_RPS")
		return nil, err
	}

	burst, err := parseIntEnv("DOWNLOAD_BURST", defaultDownloadBurst)
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_BURST")
		return nil, err
	}

	attempts, err := parseIntEnv("DOWNLOAD_ATTEMPTS", defaultDownloadAttempts)
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_ATTEMPTS")
		return nil, err
	}

	maxBytes, err := parseIntEnv("MAX_DOWNLOAD_BYTES", defaultMaxDownloadBytes)
	if err != nil {
		log.Errorf(err, "invalid MAX_DOWNLOAD_BYTES")
		return nil, err
	}

	return &ProcessorCfg{
		BatchSize:        batchSize,
		BatchDelay:       batchDelay,
		DownloadTimeout:  downloadTimeout,
		DownloadRPS:      rps,
		DownloadBurst:    burst,
		DownloadAttempts: attempts,
		MaxDownloadBytes: int64(maxBytes),
		TempDir:          getEnv("TEMP_DIR"),
	}, nil
}

func loadTransformCfg(log logger.Logger) (*TransformCfg, error) {
	const (
		defaultPadding   = 50
		defaultQuality   = 85
		defaultMaxWidth  = 1200
		defaultMaxHeight = 1200
	)

	padding, err := parseIntEnv("IMAGE_PADDING", defaultPadding)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_PADDING")
		return nil, err
	}

	quality, err := parseIntEnv("IMAGE_QUALITY", defaultQuality)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_QUALITY")
		return nil, err
	}

	maxWidth, err := parseIntEnv("IMAGE_MAX_WIDTH", defaultMaxWidth)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_MAX_WIDTH")
		return nil, err
	}

	maxHeight, err := parseIntEnv("IMAGE_MAX_HEIGHT", defaultMaxHeight)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_MAX_HEIGHT")
		return nil, err
	}

	variants, err := parseVariants(getEnv("IMAGE_VARIANTS"))
	if err != nil {
		log.Errorf(err, "invalid IMAGE_VARIANTS")
		return nil, err
	}

	return &TransformCfg{
		Padding:   padding,
		Quality:   quality,
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
		Variants:  variants,
	}, nil
}

// parseVariants разбирает список вида "400x400,150x150". Пустая строка — nil (размеры по умолчанию).
func parseVariants(v string) ([]VariantCfg, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}

	variants := make([]VariantCfg, 0)
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}

		w, h, ok := strings.Cut(part, "x")
		if !ok {
			return nil, fmt.Errorf("%w: variant %q", e.ErrIncorrectEnvVariable, part)
		}

		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("%w: variant %q", e.ErrIncorrectEnvVariable, part)
		}
		height, err := strconv.Atoi(h)
		if err != nil || height <= 0 {
			return nil, fmt.Errorf("%w: variant %q", e.ErrIncorrectEnvVariable, part)
		}

		variants = append(variants, VariantCfg{
			Suffix: fmt.Sprintf("_%dx%d", width, height),
			Width:  width,
			Height: height,
		})
	}

	return variants, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}
