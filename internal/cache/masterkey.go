package cache

import (
	"encoding/base64"
	"time"

	"github.com/ejkkan/voddly-sub005/internal/events"
)

const masterKeySize = 32

// MasterKeyCache holds unwrapped account master keys for a bounded
// window, separate from the passphrase cache: skipping re-derivation is
// worthwhile even after the passphrase itself has been cleared. The
// persisted record stores the key base64 encoded with the same expiry as
// the in-memory entry, so a process restart can never resurrect a stale
// key.
type MasterKeyCache struct {
	cache  *ttlCache
	logger *events.Logger
}

// NewMasterKeyCache creates a master key cache on top of store.
func NewMasterKeyCache(store Store, ttl, sweepInterval time.Duration, logger *events.Logger) (*MasterKeyCache, error) {
	logger = logger.WithField("component", "master_key_cache")

	cache, err := newTTLCache(store, ttl, sweepInterval, logger)
	if err != nil {
		return nil, err
	}

	return &MasterKeyCache{cache: cache, logger: logger}, nil
}

// Set stores the unwrapped key for an account with a fresh TTL window.
func (c *MasterKeyCache) Set(accountID string, key []byte) error {
	c.logger.WithField("account_id", accountID).Debug("Caching master key")
	return c.cache.set(accountID, base64.StdEncoding.EncodeToString(key))
}

// Get returns the cached key, if any. Entries that fail to decode or have
// the wrong length are treated as corrupt and evicted rather than
// returned.
func (c *MasterKeyCache) Get(accountID string) ([]byte, bool) {
	encoded, ok := c.cache.get(accountID)
	if !ok {
		return nil, false
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != masterKeySize {
		c.logger.WithField("account_id", accountID).Warn("Dropping corrupt master key entry")
		_ = c.cache.remove(accountID)
		return nil, false
	}

	return key, true
}

// Remove drops the entry for one account, invalidating both the
// in-memory and persisted layers together.
func (c *MasterKeyCache) Remove(accountID string) error {
	c.logger.WithField("account_id", accountID).Debug("Evicting master key")
	return c.cache.remove(accountID)
}

// Clear drops all entries.
func (c *MasterKeyCache) Clear() error {
	c.logger.Debug("Clearing master key cache")
	return c.cache.clear()
}

// TimeRemaining reports how long the account's entry stays valid.
func (c *MasterKeyCache) TimeRemaining(accountID string) time.Duration {
	return c.cache.timeRemaining(accountID)
}

// Close stops the background sweep and closes the backing store.
func (c *MasterKeyCache) Close() error {
	return c.cache.close()
}
