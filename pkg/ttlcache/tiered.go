package ttlcache

import (
	"context"
	"errors"
	"time"
)

// Результаты поиска, которые получает Observer.
const (
	LookupMemoryHit    = "memory_hit"
	LookupPersistedHit = "persisted_hit"
	LookupMiss         = "miss"
)

// Observer получает результат каждого Get/Has.
type Observer func(result string)

// Tiered читает сначала из памяти, затем из персистентного уровня, дозаполняя память
// оставшимся TTL. Запись и инвалидация идут в оба уровня.
type Tiered[V any] struct {
	memory    Tier[V]
	persisted Tier[V]
	clock     Clock
	observe   Observer
}

// NewTiered создаёт кэш. persisted может быть nil — тогда работает только память.
func NewTiered[V any](memory Tier[V], persisted Tier[V], clock Clock, observe Observer) *Tiered[V] {
	if clock == nil {
		clock = time.Now
	}
	if observe == nil {
		observe = func(string) {}
	}

	return &Tiered[V]{
		memory:    memory,
		persisted: persisted,
		clock:     clock,
		observe:   observe,
	}
}

func (t *Tiered[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	entry := NewEntry(value, t.clock(), ttl)

	var errs []error
	if t.persisted != nil {
		errs = append(errs, t.persisted.Put(ctx, key, entry))
	}
	errs = append(errs, t.memory.Put(ctx, key, entry))

	return errors.Join(errs...)
}

func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool, error) {
	entry, ok, err := t.memory.Entry(ctx, key)
	if err == nil && ok {
		t.observe(LookupMemoryHit)
		return entry.Data, true, nil
	}

	if t.persisted == nil {
		t.observe(LookupMiss)
		var zero V
		return zero, false, err
	}

	entry, ok, err = t.persisted.Entry(ctx, key)
	if err != nil || !ok {
		t.observe(LookupMiss)
		var zero V
		return zero, false, err
	}

	t.observe(LookupPersistedHit)
	// ошибка дозаполнения памяти не делает прочитанное значение недействительным
	_ = t.memory.Put(ctx, key, entry)

	return entry.Data, true, nil
}

func (t *Tiered[V]) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

func (t *Tiered[V]) Invalidate(ctx context.Context, key string) error {
	errs := []error{t.memory.Invalidate(ctx, key)}
	if t.persisted != nil {
		errs = append(errs, t.persisted.Invalidate(ctx, key))
	}
	return errors.Join(errs...)
}

func (t *Tiered[V]) InvalidateAll(ctx context.Context) error {
	errs := []error{t.memory.InvalidateAll(ctx)}
	if t.persisted != nil {
		errs = append(errs, t.persisted.InvalidateAll(ctx))
	}
	return errors.Join(errs...)
}
