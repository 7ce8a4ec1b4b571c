// Package cache holds read results per entity kind and keeps replicas
// coherent through invalidation messages on the bus.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/metrics"
	"github.com/unclebandit/charityng-backend/internal/queue"
)

type Kind string

const (
	KindCampaigns    Kind = "campaigns"
	KindFulfillments Kind = "fulfillments"
)

type entry struct {
	value   any
	expires time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]entry
	// generations counts drops per kind. A load that straddles a drop must
	// not store its result.
	generations map[Kind]uint64
	ttl         time.Duration
	origin      string
	bus         queue.Queue
	now         func() time.Time
}

func New(bus queue.Queue, ttl time.Duration) *Cache {
	return &Cache{
		entries:     make(map[Kind]map[string]entry),
		generations: make(map[Kind]uint64),
		ttl:         ttl,
		origin:      uuid.NewString(),
		bus:         bus,
		now:         time.Now,
	}
}

// Key joins filter parameters into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Start subscribes to invalidations broadcast by other replicas.
func (c *Cache) Start() error {
	return c.bus.Subscribe(queue.TopicCacheInvalidate, func(payload any) error {
		inv, err := queue.Decode[queue.Invalidation](payload)
		if err != nil {
			logger.L().WithError(err).Warn("invalid cache invalidation payload")
			return nil
		}
		if inv.Origin == c.origin {
			return nil
		}
		c.drop(Kind(inv.Kind), inv.Key)
		metrics.RecordInvalidation(inv.Kind, "remote")
		return nil
	})
}

func (c *Cache) Get(kind Kind, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind][key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(kind Kind, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(kind, key, value)
}

func (c *Cache) generation(kind Kind) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[kind]
}

// setIfCurrent stores value unless kind was dropped after gen was read.
func (c *Cache) setIfCurrent(kind Kind, key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[kind] != gen {
		return false
	}
	c.set(kind, key, value)
	return true
}

func (c *Cache) set(kind Kind, key string, value any) {
	ns, ok := c.entries[kind]
	if !ok {
		ns = make(map[string]entry)
		c.entries[kind] = ns
	}
	ns[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// Invalidate drops local entries right away and tells every other replica to
// do the same. An empty key drops the whole kind.
func (c *Cache) Invalidate(kind Kind, key string) {
	c.drop(kind, key)
	metrics.RecordInvalidation(string(kind), "local")

	err := c.bus.Publish(queue.TopicCacheInvalidate, queue.Invalidation{
		Kind:   string(kind),
		Key:    key,
		Origin: c.origin,
	})
	if err != nil {
		// Remote entries expire with the TTL.
		logger.L().WithError(err).WithField("kind", kind).Warn("failed to broadcast cache invalidation")
	}
}

func (c *Cache) drop(kind Kind, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[kind]++
	if key == "" {
		delete(c.entries, kind)
		return
	}
	delete(c.entries[kind], key)
}

// Remember returns the cached value for key or loads and stores it. The
// loaded value is returned but not stored when the kind was invalidated
// while loading.
func Remember[T any](c *Cache, kind Kind, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(kind, key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	gen := c.generation(kind)
	v, err := load()
	if err != nil {
		return v, err
	}
	c.setIfCurrent(kind, key, v, gen)
	return v, nil
}
