package closer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/brand-images/pkg/logger"
)

// ErrInterrupted — контекст Close истёк до закрытия всех ресурсов.
var ErrInterrupted = errors.New("shutdown interrupted")

// Func — сигнатура функции закрытия ресурса.
type Func func(ctx context.Context) error

// ResourceError — ошибка закрытия конкретного ресурса.
type ResourceError struct {
	Name   string
	Forced bool
	Err    error
}

func (r *ResourceError) Error() string {
	if r.Forced {
		return fmt.Sprintf("[FORCED] %s: %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %v", r.Name, r.Err)
}

func (r *ResourceError) Unwrap() error {
	return r.Err
}

type resource struct {
	name string
	f    Func
}

// Closer закрывает зарегистрированные ресурсы в обратном порядке (LIFO), один раз.
type Closer struct {
	mu            sync.Mutex
	once          sync.Once
	resources     []resource
	forcedTimeout time.Duration
	logger        logger.Logger
}

// NewCloser создаёт Closer. forcedTimeout — время на принудительное закрытие ресурсов,
// до которых не дошла очередь из-за истёкшего контекста. logger может быть nil.
func NewCloser(forcedTimeout time.Duration, log logger.Logger) *Closer {
	const defaultForcedTimeout = 2 * time.Second

	if forcedTimeout <= 0 {
		forcedTimeout = defaultForcedTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Closer{
		forcedTimeout: forcedTimeout,
		logger:        log,
	}
}

// Add регистрирует ресурс. name попадает в лог и в текст ошибки.
func (c *Closer) Add(name string, f Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append(c.resources, resource{name: name, f: f})
}

// Len возвращает число зарегистрированных ресурсов.
func (c *Closer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resources)
}

// Close закрывает ресурсы по одному в порядке LIFO. Если ctx отменяется раньше,
// оставшиеся ресурсы закрываются параллельно с собственным таймаутом, а в ошибку добавляется ErrInterrupted.
// Повторные вызовы ничего не делают и возвращают nil.
func (c *Closer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		resources := c.resources
		c.mu.Unlock()

		remaining, errs := c.closeInOrder(ctx, resources)
		if len(remaining) > 0 {
			c.logger.Warnf("shutdown interrupted, %d resource(s) closed forcibly", len(remaining))
			errs = append(errs, c.forceClose(remaining)...)
			errs = append(errs, ErrInterrupted)
		}

		err = errors.Join(errs...)
	})

	return err
}

// closeInOrder возвращает ресурсы, которые не успели закрыться до отмены ctx.
func (c *Closer) closeInOrder(ctx context.Context, resources []resource) ([]resource, []error) {
	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]
		done := make(chan error, 1)

		go func() {
			done <- res.f(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, &ResourceError{Name: res.name, Err: err})
				continue
			}
			c.logger.Debugf("%s closed", res.name)
		case <-ctx.Done():
			// текущий ресурс тоже закрывается принудительно
			return resources[:i+1], errs
		}
	}

	return nil, errs
}

func (c *Closer) forceClose(resources []resource) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.forcedTimeout)
	defer cancel()

	for _, res := range resources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := res.f(ctx); err != nil {
				mu.Lock()
				errs = append(errs, &ResourceError{Name: res.name, Forced: true, Err: err})
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errs
}
