package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryCapacity = 10000

// MemoryBackend 是进程内的过期 LRU，读取时不会返回已过期的条目。
// 一个后端实例只支持一个 TTL，取第一次创建时的值。
type MemoryBackend struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{lru: expirable.NewLRU[string, []byte](memoryCapacity, nil, ttl)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := b.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.lru.Add(key, value)
	return nil
}
