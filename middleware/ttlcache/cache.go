// Package ttlcache é um cache em memória com TTL por entrada e expiração preguiçosa.
package ttlcache

import (
	"sync"
	"time"
)

type Item struct {
	Data     any
	StoredAt time.Time
	TTL      time.Duration
}

// expired segue a regra now - storedAt > ttl.
func (i Item) expired(now time.Time) bool {
	return now.Sub(i.StoredAt) > i.TTL
}

type Cache struct {
	store map[string]Item
	lock  sync.Mutex
	now   func() time.Time
}

type Option func(*Cache)

// WithClock injeta o relógio (testes).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		store: map[string]Item{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get devolve a entrada viva. Entrada expirada é removida e conta como ausente.
func (c *Cache) Get(key string) (any, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	item, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if item.expired(c.now()) {
		delete(c.store, key)
		return nil, false
	}
	return item.Data, true
}

func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.store[key] = Item{
		Data:     data,
		StoredAt: c.now(),
		TTL:      ttl,
	}
}

// Len conta apenas entradas vivas.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	n := 0
	for _, item := range c.store {
		if !item.expired(now) {
			n++
		}
	}
	return n
}

// Purge remove todas as entradas expiradas e retorna quantas saíram.
func (c *Cache) Purge() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	removed := 0
	for k, item := range c.store {
		if item.expired(now) {
			delete(c.store, k)
			removed++
		}
	}
	return removed
}
