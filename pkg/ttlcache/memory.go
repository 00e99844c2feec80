package ttlcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize — предел числа записей процессного уровня.
const DefaultMemorySize = 10_000

// Memory — процессный уровень кэша. Объём ограничен LRU, истечение ленивое.
type Memory[V any] struct {
	mu    sync.Mutex
	items *lru.Cache[string, Entry[V]]
	clock Clock
}

// MemoryOption настраивает Memory.
type MemoryOption[V any] func(*Memory[V])

// WithClock подменяет источник времени.
func WithClock[V any](clock Clock) MemoryOption[V] {
	return func(m *Memory[V]) {
		m.clock = clock
	}
}

func NewMemory[V any](size int, opts ...MemoryOption[V]) (*Memory[V], error) {
	if size <= 0 {
		size = DefaultMemorySize
	}

	items, err := lru.New[string, Entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("ttlcache: create lru: %w", err)
	}

	m := &Memory[V]{items: items, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Memory[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	return m.Put(ctx, key, NewEntry(value, m.clock(), ttl))
}

func (m *Memory[V]) Put(_ context.Context, key string, entry Entry[V]) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Expired(m.clock()) {
		m.items.Remove(key)
		return nil
	}
	m.items.Add(key, entry)

	return nil
}

// Entry возвращает запись; истёкшая запись удаляется и считается промахом.
func (m *Memory[V]) Entry(_ context.Context, key string) (Entry[V], bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items.Get(key)
	if !ok {
		return Entry[V]{}, false, nil
	}

	if entry.Expired(m.clock()) {
		m.items.Remove(key)
		return Entry[V]{}, false, nil
	}

	return entry, true, nil
}

func (m *Memory[V]) Get(ctx context.Context, key string) (V, bool, error) {
	entry, ok, err := m.Entry(ctx, key)
	return entry.Data, ok, err
}

func (m *Memory[V]) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Entry(ctx, key)
	return ok, err
}

func (m *Memory[V]) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items.Remove(key)
	return nil
}

func (m *Memory[V]) InvalidateAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items.Purge()
	return nil
}

// Len — число записей, включая ещё не прочитанные истёкшие.
func (m *Memory[V]) Len() int {
	return m.items.Len()
}
