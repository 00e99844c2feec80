package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DRSN-tech/brand-images/internal/infrastructure"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/jitter"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	defaultRPS         = 5
	defaultBurst       = 5
	defaultMaxAttempts = 3
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
	defaultMaxBytes    = 32 << 20
	defaultUserAgent   = "brand-images/1.0"
)

type Config struct {
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxBytes    int64
	UserAgent   string
}

// StatusError — неуспешный HTTP-ответ источника.
type StatusError struct {
	URL  string
	Code int
}

func (s *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", s.URL, s.Code)
}

// TooLargeError — тело ответа превысило лимит.
type TooLargeError struct {
	Limit int64
}

func (t *TooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", t.Limit)
}

// Fetcher скачивает исходные изображения. Все загрузки делят один rate.Limiter,
// временные сбои (сеть, 5xx, 429) повторяются с экспоненциальной задержкой и джиттером.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     Config
	logger  logger.Logger
}

func NewFetcher(client *http.Client, cfg Config, logger logger.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch скачивает url и пишет тело в w. В w попадает только полностью прочитанное тело.
func (f *Fetcher) Fetch(ctx context.Context, url string, w io.Writer) error {
	const op = "Fetcher.Fetch"

	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := jitter.ExponentialBackoff(f.cfg.BaseBackoff, f.cfg.MaxBackoff, attempt-1, jitter.DefaultJitter)
			f.logger.Debugf("retry %s in %s (attempt %d): %v", url, delay, attempt+1, lastErr)
			if err := jitter.Sleep(ctx, delay); err != nil {
				return e.Transient(op, errors.Join(lastErr, err))
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return e.Transient(op, err)
		}

		data, err := f.get(ctx, url)
		if err == nil {
			if _, err := w.Write(data); err != nil {
				return e.Transient(op, err)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	return e.Transient(op, lastErr)
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); !infrastructure.IsAcceptableSource(ct) {
		return nil, fmt.Errorf("%w: %s", e.ErrUnsupportedMediaType, ct)
	}

	return readAllWithLimit(resp.Body, f.cfg.MaxBytes)
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &TooLargeError{Limit: limit}
	}
	return data, nil
}

// retryable: сетевые ошибки, 5xx и 429. Ответы 4xx, неверный тип и превышение размера не повторяются.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	var tooLarge *TooLargeError
	if errors.As(err, &tooLarge) || errors.Is(err, e.ErrUnsupportedMediaType) {
		return false
	}

	return true
}
