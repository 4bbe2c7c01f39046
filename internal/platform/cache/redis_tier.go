// Package cache はRedisを用いたホットキャッシュ層を提供します。
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/usecase"
)

// DefaultNamespace は全キーの先頭に付くプレフィックスの既定値です。
const DefaultNamespace = "marketdata"

// scanCount は SCAN 1回あたりのヒント件数です。
const scanCount = 200

// RedisTier は名前空間付きのキーでバイト列を保存するホットキャッシュ層です。
// rdb が nil、またはRedisに到達できない場合は常にミスとして振る舞い、書き込みは何もしません。
type RedisTier struct {
	rdb       *redis.Client
	namespace string

	hits   atomic.Int64
	misses atomic.Int64
}

// RedisTierがHotCacheを実装していることをコンパイル時に検証します。
var _ usecase.HotCache = (*RedisTier)(nil)

// NewRedisTier は RedisTier を生成します。namespace が空の場合は DefaultNamespace を使います。
func NewRedisTier(rdb *redis.Client, namespace string) *RedisTier {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisTier{rdb: rdb, namespace: namespace}
}

// Get はキーの値を返します。存在しない、空、またはRedisエラーの場合は domain.ErrCacheMiss です。
func (c *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	if c.rdb == nil {
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("hot cache read failed, treating as miss", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}
	if len(b) == 0 {
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}
	c.hits.Add(1)
	return b, nil
}

// Set は値をTTL付きで保存します。
func (c *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("hot cache set %s: %w", key, err)
	}
	return nil
}

// Delete はキーを削除します。
func (c *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if c.rdb == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("hot cache delete: %w", err)
	}
	return nil
}

// DeletePattern はパターンに一致するキーを SCAN で列挙して削除し、削除件数を返します。
func (c *RedisTier) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	deleted := 0
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, c.key(pattern), scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("hot cache scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("hot cache delete %s: %w", pattern, err)
			}
			deleted += int(n)
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Stats はヒット統計と名前空間内のキー数を返します。
func (c *RedisTier) Stats(ctx context.Context) (entity.TierStats, error) {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := entity.TierStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	if c.rdb == nil {
		return s, nil
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return s, nil
	}
	s.Available = true

	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, c.key("*"), scanCount).Result()
		if err != nil {
			return s, fmt.Errorf("hot cache scan: %w", err)
		}
		s.Keys += int64(len(keys))
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return s, nil
}

// Ping はRedisへの疎通を確認します。
func (c *RedisTier) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return fmt.Errorf("hot cache: %s", domain.KindCacheUnavailable)
	}
	return c.rdb.Ping(ctx).Err()
}

// Close はRedisクライアントを閉じます。
func (c *RedisTier) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *RedisTier) key(k string) string {
	return c.namespace + ":" + k
}
