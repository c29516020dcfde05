package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache 进程内 LRU，条目过期后在读取时淘汰
type TTLCache[V any] struct {
	entries *lru.Cache[string, ttlEntry[V]]
	now     func() time.Time
}

func NewTTLCache[V any](size int) *TTLCache[V] {
	if size <= 0 {
		size = 256
	}
	// size > 0 时 lru.New 不会出错
	l, _ := lru.New[string, ttlEntry[V]](size)
	return &TTLCache[V]{entries: l, now: time.Now}
}

func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.entries.Add(key, ttlEntry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Get 未命中或已过期时 ok 为 false
func (c *TTLCache[V]) Get(key string) (v V, ok bool) {
	e, found := c.entries.Get(key)
	if !found {
		return v, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		return v, false
	}
	return e.value, true
}

func (c *TTLCache[V]) Delete(key string) {
	c.entries.Remove(key)
}
