package auth

import (
	"context"
	"strconv"

	"chatrelay/internal/cache"
	"chatrelay/internal/models"
	"chatrelay/internal/store"

	"github.com/rs/zerolog/log"
)

// Resolver 通过两级查找解析当前身份：先查会话缓存，未命中再查身份存储。
type Resolver struct {
	cache *cache.SessionCache
	store store.Identities
}

func NewResolver(c *cache.SessionCache, s store.Identities) *Resolver {
	return &Resolver{cache: c, store: s}
}

// Resolve 任何失败都折叠为匿名（nil），从不向调用方返回错误。
func (r *Resolver) Resolve(ctx context.Context, sessionKey string) *models.User {
	if sessionKey == "" {
		return nil
	}
	if u, ok := r.cache.Get(ctx, "user:"+sessionKey); ok {
		return u
	}
	id, err := strconv.ParseUint(sessionKey, 10, 64)
	if err != nil {
		return nil
	}
	u, err := r.store.FindByID(ctx, uint(id))
	if err != nil {
		return nil
	}
	// repopulate
	if err := r.cache.Put(ctx, cache.Key(u.ID), u); err != nil {
		log.Warn().Err(err).Uint("user_id", u.ID).Msg("session cache repopulate")
	}
	return u
}
