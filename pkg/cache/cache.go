package cache

import (
	"sync"
	"time"
)

// entry 缓存条目
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// InMemoryCache 带 TTL 的泛型内存缓存
type InMemoryCache[K comparable, V any] struct {
	data map[K]entry[V]
	ttl  time.Duration
	mu   sync.RWMutex
}

// New 创建新的内存缓存，ttl <= 0 表示永不过期
func New[K comparable, V any](ttl time.Duration) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data: make(map[K]entry[V]),
		ttl:  ttl,
	}
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set 设置缓存值
func (c *InMemoryCache[K, V]) Set(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.data[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete 删除缓存值
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len 返回缓存条目数（包含可能已过期但未清理的条目）
func (c *InMemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Prune 清理所有已过期的条目，返回清理数量
func (c *InMemoryCache[K, V]) Prune() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.data {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}
