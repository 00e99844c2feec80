package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DRSN-tech/brand-images/pkg/clients"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/DRSN-tech/brand-images/pkg/ttlcache"
	"github.com/jimlawless/whereami"
	goredis "github.com/redis/go-redis/v9"
)

// scanBatch — размер страницы SCAN при InvalidateAll.
const scanBatch = 100

// deleteIfEqual удаляет ключ, только если он всё ещё хранит прочитанное значение.
// Так ленивое удаление истёкшей записи не затирает свежую запись другого процесса.
var deleteIfEqual = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CacheRepo — персистентный уровень кэша в Redis. Ключи имеют вид {namespace}:{key},
// значение — JSON-конверт ttlcache.Entry. TTL Redis совпадает с оставшимся временем записи.
type CacheRepo[V any] struct {
	client    *clients.RedisClient
	namespace string
	clock     ttlcache.Clock
	logger    logger.Logger
}

func NewCacheRepo[V any](client *clients.RedisClient, namespace string, clock ttlcache.Clock, logger logger.Logger) *CacheRepo[V] {
	if clock == nil {
		clock = time.Now
	}

	return &CacheRepo[V]{
		client:    client,
		namespace: namespace,
		clock:     clock,
		logger:    logger,
	}
}

func (r *CacheRepo[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	return r.Put(ctx, key, ttlcache.NewEntry(value, r.clock(), ttl))
}

// Put сохраняет запись целиком. Уже истёкшая запись удаляет ключ.
func (r *CacheRepo[V]) Put(ctx context.Context, key string, entry ttlcache.Entry[V]) error {
	if key == "" {
		return ttlcache.ErrEmptyKey
	}

	remaining := entry.Remaining(r.clock())
	if remaining <= 0 {
		return r.Invalidate(ctx, key)
	}

	data, err := marshalEntry(entry)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := r.client.Client.Set(ctx, r.cacheKey(key), data, remaining).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Entry возвращает запись. Истёкшая или повреждённая запись удаляется и считается промахом.
func (r *CacheRepo[V]) Entry(ctx context.Context, key string) (ttlcache.Entry[V], bool, error) {
	cacheKey := r.cacheKey(key)

	raw, err := r.client.Client.Get(ctx, cacheKey).Result()
	if errors.Is(err, goredis.Nil) {
		return ttlcache.Entry[V]{}, false, nil // cache miss
	}
	if err != nil {
		return ttlcache.Entry[V]{}, false, e.Wrap(whereami.WhereAmI(), err)
	}

	entry, err := unmarshalEntry[V]([]byte(raw))
	if err != nil {
		r.logger.Warnf("Redis unmarshal failed for %s: %v", cacheKey, e.Wrap(whereami.WhereAmI(), err))
		r.evict(ctx, cacheKey, raw)
		return ttlcache.Entry[V]{}, false, nil
	}

	if entry.Expired(r.clock()) {
		r.evict(ctx, cacheKey, raw)
		return ttlcache.Entry[V]{}, false, nil
	}

	return entry, true, nil
}

func (r *CacheRepo[V]) Get(ctx context.Context, key string) (V, bool, error) {
	entry, ok, err := r.Entry(ctx, key)
	return entry.Data, ok, err
}

func (r *CacheRepo[V]) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := r.Entry(ctx, key)
	return ok, err
}

func (r *CacheRepo[V]) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Client.Del(ctx, r.cacheKey(key)).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// InvalidateAll удаляет все ключи пространства имён. Ключи других пространств не трогаются.
func (r *CacheRepo[V]) InvalidateAll(ctx context.Context) error {
	iter := r.client.Client.Scan(ctx, 0, r.namespace+":*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := r.client.Client.Del(ctx, batch...).Err(); err != nil {
				return e.Wrap(whereami.WhereAmI(), err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if len(batch) > 0 {
		if err := r.client.Client.Del(ctx, batch...).Err(); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

// evict удаляет ключ, если его значение не изменилось с момента чтения.
func (r *CacheRepo[V]) evict(ctx context.Context, cacheKey, raw string) {
	if err := deleteIfEqual.Run(ctx, r.client.Client, []string{cacheKey}, raw).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		r.logger.Warnf("Redis evict failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}

// cacheKey возвращает Redis-ключ для ключа кэша
func (r *CacheRepo[V]) cacheKey(key string) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// marshalEntry сериализует запись в JSON для кэша
func marshalEntry[V any](entry ttlcache.Entry[V]) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// unmarshalEntry десериализует JSON из кэша в запись
func unmarshalEntry[V any](data []byte) (ttlcache.Entry[V], error) {
	var entry ttlcache.Entry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return ttlcache.Entry[V]{}, err
	}
	if entry.ExpiresAt.IsZero() {
		return ttlcache.Entry[V]{}, fmt.Errorf("cache entry without expires_at")
	}

	return entry, nil
}
