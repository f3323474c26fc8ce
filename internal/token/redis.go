package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache はRevocationCacheのRedis実装。
// キーごとのTTLはRedisのEXPIREセマンティクスに委譲する。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache は指定アドレスのRedisに接続するRedisCacheを生成する。
// redis.Clientは接続を遅延確立するため、疎通確認にはPingを使用すること。
func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Ping はRedisへの疎通を確認する。
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get はキーに対応する値を返す。エントリが存在しない場合はok=falseを返す。
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return val, true, nil
}

// SetWithTTL はTTL付きでエントリを書き込む。
func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RevocationCache = (*RedisCache)(nil)
