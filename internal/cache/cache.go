// Package cache 实现会话缓存：以 "user:<id>" 为键保存序列化后的身份，
// 固定 TTL 过期，后端不可用时退化为未命中。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"chatrelay/internal/metrics"
	"chatrelay/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultTTL 是会话缓存条目的默认存活时间。
const DefaultTTL = time.Hour

const keyPrefix = "user:"

// ErrMiss 表示键不存在或已过期。
var ErrMiss = errors.New("cache miss")

// Backend 是缓存后端需要提供的键值能力，Set 对单个键必须是原子写入。
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key 根据身份 ID 生成缓存键。
func Key(id uint) string {
	return keyPrefix + strconv.FormatUint(uint64(id), 10)
}

type SessionCache struct {
	backend Backend
	ttl     time.Duration
}

func New(backend Backend, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionCache{backend: backend, ttl: ttl}
}

// TTL 返回写入条目使用的存活时间。
func (c *SessionCache) TTL() time.Duration { return c.ttl }

// Get 查询缓存。未命中、过期、反序列化失败或后端故障都返回 false。
func (c *SessionCache) Get(ctx context.Context, key string) (*models.User, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("key", key).Msg("session cache get")
		}
		return nil, false
	}
	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("session cache decode")
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &u, true
}

// Put 序列化身份并覆盖写入，过期时间为 now + ttl。
func (c *SessionCache) Put(ctx context.Context, key string, u *models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, key, data, c.ttl)
}
