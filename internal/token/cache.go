// Package token はアクセストークンとリフレッシュトークンの
// 発行・検証・失効のライフサイクル管理を提供する。
package token

import (
	"context"
	"sync"
	"time"
)

// RevocationCache は失効済みアクセストークンを保持する外部キャッシュの
// ケイパビリティインターフェース。キーごとのTTL付き書き込みと読み出しのみを要求する。
// 実装にはRedis（RedisCache）とインメモリ（MemoryCache）がある。
// Managerはnilのキャッシュでも動作する（失効チェックなしの署名検証のみに縮退）。
type RevocationCache interface {
	// Get はキーに対応する値を返す。エントリが存在しない場合は ok=false を返す。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetWithTTL はTTL付きでエントリを書き込む。TTL経過後、エントリは自動消滅する。
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// MemoryCache はRevocationCacheのインメモリ実装。
// テストおよびRedisなし構成での起動に使用する。
// 期限切れエントリはGet時に遅延削除する。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache はMemoryCacheを生成する。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// Get はキーに対応する値を返す。期限切れエントリは削除してok=falseを返す。
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// SetWithTTL はTTL付きでエントリを書き込む。
func (c *MemoryCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len は現在保持しているエントリ数を返す。テストおよびメトリクス用。
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// compile-time interface check
var _ RevocationCache = (*MemoryCache)(nil)
