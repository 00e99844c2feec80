// Package ttlcache предоставляет кэш с ленивым истечением записей.
//
// Запись хранит момент записи и момент истечения; истёкшая запись никогда не
// возвращается и удаляется при чтении. Фонового уборщика нет.
// Tiered объединяет процессный уровень (Memory) и персистентный уровень
// (любой Tier, например Redis) с одинаковой семантикой TTL.
package ttlcache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL используется, если ttl не задан.
const DefaultTTL = 30 * time.Minute

// ErrEmptyKey возвращается для пустого ключа.
var ErrEmptyKey = errors.New("ttlcache: empty key")

// Cache — контракт кэша, которым пользуются сервисы.
type Cache[V any] interface {
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Get(ctx context.Context, key string) (V, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
}

// Tier — уровень кэша, умеющий отдавать и принимать запись целиком (с моментом истечения).
type Tier[V any] interface {
	Cache[V]
	Entry(ctx context.Context, key string) (Entry[V], bool, error)
	Put(ctx context.Context, key string, entry Entry[V]) error
}

// Entry — сериализуемая запись кэша.
type Entry[V any] struct {
	Data      V         `json:"data"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry создаёт запись, истекающую через ttl после now.
func NewEntry[V any](value V, now time.Time, ttl time.Duration) Entry[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry[V]{Data: value, StoredAt: now, ExpiresAt: now.Add(ttl)}
}

// Expired сообщает, истекла ли запись к моменту now. Запись на границе ttl уже истекла.
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Remaining — оставшееся время жизни записи.
func (e Entry[V]) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// Clock возвращает текущее время. Подменяется в тестах.
type Clock func() time.Time
