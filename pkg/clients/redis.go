package clients

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/brand-images/internal/cfg"
	"github.com/DRSN-tech/brand-images/pkg/e"
	r "github.com/redis/go-redis/v9"
)

// RedisClient — подключение к персистентному уровню кэша сопоставлений.
type RedisClient struct {
	Client *r.Client
}

func NewRedisClient(cfg *cfg.RedisCfg) *RedisClient {
	return &RedisClient{
		Client: r.NewClient(redisOptions(cfg)),
	}
}

func redisOptions(cfg *cfg.RedisCfg) *r.Options {
	return &r.Options{
		Addr:         cfg.Addr,
		Username:     cfg.User,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
}

// Ping проверяет доступность Redis. Недоступный сервер — фатальная ошибка запуска.
func (c *RedisClient) Ping(ctx context.Context) error {
	const op = "RedisClient.Ping"

	if err := c.Client.Ping(ctx).Err(); err != nil {
		return e.Fatal(op, fmt.Errorf("%w: redis %s: %v", e.ErrStorageUnavailable, c.Client.Options().Addr, err))
	}

	return nil
}

// Close совместим с closer.Func.
func (c *RedisClient) Close(_ context.Context) error {
	return c.Client.Close()
}
