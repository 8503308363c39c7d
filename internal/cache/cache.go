package cache

import (
	"sync"
	"time"

	"github.com/ejkkan/voddly-sub005/internal/events"
)

// Entry is one persisted, TTL-stamped cache record. Value holds the
// passphrase directly or a base64-encoded master key, depending on which
// cache owns the entry.
type Entry struct {
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now. An entry
// expires exactly at its ExpiresAt instant, never later.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the persisted layer behind a TTL cache. Save always receives
// the entire surviving entry set so a crash can never resurrect an entry
// the in-memory layer already dropped.
type Store interface {
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
	Close() error
}

// ttlCache is the shared core of the passphrase and master key caches:
// an in-memory map with lazy expiry, write-through persistence, and a
// periodic sweep.
type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	ttl    time.Duration
	store  Store
	logger *events.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newTTLCache(store Store, ttl, sweepInterval time.Duration, logger *events.Logger) (*ttlCache, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}

	c := &ttlCache{
		entries: entries,
		ttl:     ttl,
		store:   store,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Entries that expired while the process was down never become
	// visible.
	if c.evictExpiredLocked(time.Now()) {
		c.persistLocked()
	}

	go c.sweepLoop(sweepInterval)

	return c, nil
}

// set writes an entry with a fresh TTL window computed from now. Reads
// never extend a TTL; only set does.
func (c *ttlCache) set(id, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[id] = Entry{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	return c.store.Save(c.snapshotLocked())
}

// get returns the value if present and unexpired. Expired entries are
// evicted on read, never returned.
func (c *ttlCache) get(id string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if entry.Expired(time.Now()) {
		c.evict(id)
		return "", false
	}

	return entry.Value, true
}

// remove deletes an entry. Removing a missing entry is a no-op.
func (c *ttlCache) remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return nil
	}

	delete(c.entries, id)
	return c.store.Save(c.snapshotLocked())
}

// clear drops all entries.
func (c *ttlCache) clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	return c.store.Save(c.snapshotLocked())
}

// timeRemaining reports how long the entry stays valid; zero when absent
// or expired.
func (c *ttlCache) timeRemaining(id string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return 0
	}

	remaining := time.Until(entry.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *ttlCache) evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok || !entry.Expired(time.Now()) {
		return
	}

	delete(c.entries, id)
	c.persistLocked()
}

// sweepLoop proactively drops expired entries so the persisted store does
// not accumulate garbage between reads.
func (c *ttlCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *ttlCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evictExpiredLocked(time.Now()) {
		c.persistLocked()
	}
}

func (c *ttlCache) evictExpiredLocked(now time.Time) bool {
	var evicted bool
	for id, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, id)
			evicted = true
		}
	}
	return evicted
}

func (c *ttlCache) persistLocked() {
	if err := c.store.Save(c.snapshotLocked()); err != nil {
		c.logger.WithError(err).Warn("Failed to persist cache entries")
	}
}

func (c *ttlCache) snapshotLocked() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for id, entry := range c.entries {
		out[id] = entry
	}
	return out
}

// close stops the sweeper and closes the backing store.
func (c *ttlCache) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.store.Close()
	})
	return err
}
