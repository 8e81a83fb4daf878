package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"retailpos/backend/internal/domain"
)

// LRUProductCache is the in-process layer. Entries expire after the TTL given
// at construction; the per-call ttl is ignored.
type LRUProductCache struct {
	lru *expirable.LRU[string, domain.ResolvedProduct]
}

func NewLRUProductCache(size int, ttl time.Duration) *LRUProductCache {
	if size < 1 {
		size = 1024
	}
	return &LRUProductCache{lru: expirable.NewLRU[string, domain.ResolvedProduct](size, nil, ttl)}
}

func (c *LRUProductCache) Get(_ context.Context, key string) (*domain.ResolvedProduct, bool, error) {
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &value, true, nil
}

func (c *LRUProductCache) Set(_ context.Context, key string, value *domain.ResolvedProduct, _ time.Duration) error {
	if value == nil {
		return nil
	}
	c.lru.Add(key, *value)
	return nil
}

func (c *LRUProductCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *LRUProductCache) Len() int {
	return c.lru.Len()
}
