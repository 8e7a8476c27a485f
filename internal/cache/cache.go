// Package cache is a time-bounded, scope-keyed view cache in front of the
// durable store. It is read-through for views and write-around for
// mutations: writers go to the store and then invalidate.
package cache

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"babylog/internal/metrics"
)

const (
	// DefaultTTL is how long a cached view stays valid.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval bounds how often stale entries are purged.
	DefaultSweepInterval = time.Minute
)

type item struct {
	value     any
	createdAt time.Time
}

// Cache is safe for concurrent use. A single mutex guards the whole map.
type Cache struct {
	logger        *slog.Logger
	clock         clockwork.Clock
	ttl           time.Duration
	sweepInterval time.Duration

	mu         sync.Mutex
	items      map[string]item
	lastSweep  time.Time
	generation uint64 // bumped by every invalidation
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		logger:        slog.Default(),
		clock:         clockwork.NewRealClock(),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		items:         make(map[string]item),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSweep = c.clock.Now()
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the value stored under key. Expired values are treated as
// absent and dropped.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.maybeSweepLocked(now)

	it, ok := c.items[key]
	if ok && c.expired(it, now) {
		delete(c.items, key)
		metrics.CacheEvictions.WithLabelValues("expired").Inc()
		ok = false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(scopeOf(key), "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(scopeOf(key), "hit").Inc()
	return it.value, true
}

// Set stores value under key, stamped with the current time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.maybeSweepLocked(now)
	c.items[key] = item{value: value, createdAt: now}
}

// Generation identifies the current invalidation epoch. Read it before
// fetching from the store and pass it to SetIfUnchanged.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfUnchanged stores value only if no invalidation happened since gen was
// read, so a fetch that raced with a write cannot repopulate stale data.
func (c *Cache) SetIfUnchanged(key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	now := c.clock.Now()
	c.maybeSweepLocked(now)
	c.items[key] = item{value: value, createdAt: now}
	return true
}

// InvalidateAll clears every scope.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	n := len(c.items)
	c.items = make(map[string]item)
	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(n))
	c.logger.Debug("cache invalidated", "entries", n)
}

// InvalidateUser clears the user-* scopes that embed userID.
func (c *Cache) InvalidateUser(userID int64) {
	uid := strconv.FormatInt(userID, 10)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	n := 0
	for key := range c.items {
		if belongsToUser(key, uid) {
			delete(c.items, key)
			n++
		}
	}
	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(n))
	c.logger.Debug("cache invalidated for user", "user_id", userID, "entries", n)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) expired(it item, now time.Time) bool {
	return now.Sub(it.createdAt) >= c.ttl
}

func (c *Cache) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepInterval {
		return
	}
	c.lastSweep = now

	n := 0
	for key, it := range c.items {
		if c.expired(it, now) {
			delete(c.items, key)
			n++
		}
	}
	if n > 0 {
		metrics.CacheEvictions.WithLabelValues("expired").Add(float64(n))
		c.logger.Debug("cache sweep", "removed", n)
	}
}
