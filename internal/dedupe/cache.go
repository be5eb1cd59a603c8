// ABOUTME: Thread-safe TTL cache remembering metadata the collector already stored.
// ABOUTME: Lets the collector acknowledge re-delivered dictionary entries without reprocessing.

package dedupe

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Key identifies one dictionary entry of one agent process. Dictionary ids
// are only unique within an agent run, so the start time is part of the key.
type Key struct {
	AgentID   string
	StartTime int64
	Family    string
	ID        int32
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d/%s/%d", k.AgentID, k.StartTime, k.Family, k.ID)
}

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a TTL-based, size-limited set of Keys. Oldest entries are evicted
// first when the cache is full.
type Cache struct {
	mu      sync.Mutex
	seen    map[Key]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache. A background goroutine drops expired entries every
// sweep interval; Close stops it.
func New(ttl time.Duration, maxSize int, sweep time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	if sweep <= 0 {
		sweep = time.Minute
	}
	c := &Cache{
		seen:    make(map[Key]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep(sweep)
	return c
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && time.Since(entry.timestamp) < c.ttl
}

// Mark records key, refreshing it if present.
func (c *Cache) Mark(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.seen[key]; ok {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[key] = &cacheEntry{timestamp: now, element: c.order.PushBack(key)}
}

// Len reports the number of entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.seen, front.Value.(Key))
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	// Entries are ordered by last mark, so the first live one ends the scan.
	for e := c.order.Front(); e != nil; {
		key := e.Value.(Key)
		if now.Sub(c.seen[key].timestamp) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.seen, key)
		e = next
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
