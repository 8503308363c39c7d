package cache

import (
	"time"

	"github.com/ejkkan/voddly-sub005/internal/events"
)

// PassphraseCache holds recently validated passphrases per account for a
// bounded window, so users are not re-prompted on every credential
// request. Entries live in memory and in a session-scoped store that the
// platform clears on full data reset.
type PassphraseCache struct {
	cache  *ttlCache
	logger *events.Logger
}

// NewPassphraseCache creates a passphrase cache on top of store. Entries
// already expired at load time are discarded before first use.
func NewPassphraseCache(store Store, ttl, sweepInterval time.Duration, logger *events.Logger) (*PassphraseCache, error) {
	logger = logger.WithField("component", "passphrase_cache")

	cache, err := newTTLCache(store, ttl, sweepInterval, logger)
	if err != nil {
		return nil, err
	}

	return &PassphraseCache{cache: cache, logger: logger}, nil
}

// Set stores the passphrase for an account with a fresh TTL window.
func (c *PassphraseCache) Set(accountID, passphrase string) error {
	c.logger.WithField("account_id", accountID).Debug("Caching passphrase")
	return c.cache.set(accountID, passphrase)
}

// Get returns the cached passphrase, if any. Expired entries are evicted
// and reported as absent.
func (c *PassphraseCache) Get(accountID string) (string, bool) {
	return c.cache.get(accountID)
}

// Remove drops the entry for one account. Safe to call repeatedly.
func (c *PassphraseCache) Remove(accountID string) error {
	c.logger.WithField("account_id", accountID).Debug("Evicting passphrase")
	return c.cache.remove(accountID)
}

// Clear drops all entries.
func (c *PassphraseCache) Clear() error {
	c.logger.Debug("Clearing passphrase cache")
	return c.cache.clear()
}

// TimeRemaining reports how long the account's entry stays valid.
func (c *PassphraseCache) TimeRemaining(accountID string) time.Duration {
	return c.cache.timeRemaining(accountID)
}

// Close stops the background sweep and closes the backing store.
func (c *PassphraseCache) Close() error {
	return c.cache.close()
}
