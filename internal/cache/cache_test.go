package cache_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejkkan/voddly-sub005/internal/cache"
	"github.com/ejkkan/voddly-sub005/internal/events"
)

func testLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "text", &bytes.Buffer{})
}

func newPassphraseCache(t *testing.T, store cache.Store, ttl time.Duration) *cache.PassphraseCache {
	t.Helper()

	c, err := cache.NewPassphraseCache(store, ttl, time.Hour, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPassphraseCache_SetGet(t *testing.T) {
	c := newPassphraseCache(t, cache.NewMemoryStore(), time.Minute)

	require.NoError(t, c.Set("acc-1", "correct-horse-battery"))

	got, ok := c.Get("acc-1")
	require.True(t, ok)
	assert.Equal(t, "correct-horse-battery", got)

	_, ok = c.Get("acc-2")
	assert.False(t, ok)
}

func TestPassphraseCache_TTLExpiry(t *testing.T) {
	c := newPassphraseCache(t, cache.NewMemoryStore(), 40*time.Millisecond)

	require.NoError(t, c.Set("acc-1", "secret"))

	got, ok := c.Get("acc-1")
	require.True(t, ok)
	assert.Equal(t, "secret", got)

	time.Sleep(60 * time.Millisecond)

	_, ok = c.Get("acc-1")
	assert.False(t, ok, "expired entry must never be returned")
}

func TestPassphraseCache_IdempotentEviction(t *testing.T) {
	c := newPassphraseCache(t, cache.NewMemoryStore(), 20*time.Millisecond)

	require.NoError(t, c.Set("acc-1", "secret"))
	time.Sleep(40 * time.Millisecond)

	// Expired reads and repeated removes neither panic nor resurrect.
	_, ok := c.Get("acc-1")
	assert.False(t, ok)
	_, ok = c.Get("acc-1")
	assert.False(t, ok)

	require.NoError(t, c.Remove("acc-1"))
	require.NoError(t, c.Remove("acc-1"))
}

func TestPassphraseCache_WriteThrough(t *testing.T) {
	store := cache.NewMemoryStore()
	c := newPassphraseCache(t, store, time.Minute)

	require.NoError(t, c.Set("acc-1", "secret"))
	require.NoError(t, c.Set("acc-2", "other"))

	persisted := store.Persisted()
	require.Len(t, persisted, 2)
	assert.Equal(t, "secret", persisted["acc-1"].Value)
	assert.False(t, persisted["acc-1"].ExpiresAt.IsZero())

	require.NoError(t, c.Remove("acc-1"))
	persisted = store.Persisted()
	require.Len(t, persisted, 1)
	assert.Contains(t, persisted, "acc-2")

	require.NoError(t, c.Clear())
	assert.Empty(t, store.Persisted())
}

func TestPassphraseCache_StartupDropsExpired(t *testing.T) {
	store := cache.NewMemoryStore()
	now := time.Now()
	store.Seed(map[string]cache.Entry{
		"stale": {Value: "old", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		"live":  {Value: "fresh", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	})

	c := newPassphraseCache(t, store, time.Minute)

	_, ok := c.Get("stale")
	assert.False(t, ok)

	got, ok := c.Get("live")
	require.True(t, ok)
	assert.Equal(t, "fresh", got)

	assert.NotContains(t, store.Persisted(), "stale")
}

func TestPassphraseCache_TimeRemaining(t *testing.T) {
	c := newPassphraseCache(t, cache.NewMemoryStore(), time.Minute)

	require.NoError(t, c.Set("acc-1", "secret"))

	remaining := c.TimeRemaining("acc-1")
	assert.Greater(t, remaining, 50*time.Second)
	assert.LessOrEqual(t, remaining, time.Minute)

	assert.Equal(t, time.Duration(0), c.TimeRemaining("missing"))
}

func TestPassphraseCache_SetRecomputesTTL(t *testing.T) {
	c := newPassphraseCache(t, cache.NewMemoryStore(), 80*time.Millisecond)

	require.NoError(t, c.Set("acc-1", "secret"))
	time.Sleep(50 * time.Millisecond)

	// A rewrite starts a fresh window from the write time.
	require.NoError(t, c.Set("acc-1", "secret"))
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("acc-1")
	assert.True(t, ok)
}

func TestPassphraseCache_SweepEvictsFromStore(t *testing.T) {
	store := cache.NewMemoryStore()
	c, err := cache.NewPassphraseCache(store, 20*time.Millisecond, 15*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set("acc-1", "secret"))

	require.Eventually(t, func() bool {
		return len(store.Persisted()) == 0
	}, time.Second, 10*time.Millisecond, "sweep should drop the expired entry without a read")
}

func TestMasterKeyCache_RoundTrip(t *testing.T) {
	store := cache.NewMemoryStore()
	c, err := cache.NewMasterKeyCache(store, time.Minute, time.Hour, testLogger())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	key := bytes.Repeat([]byte{0x42}, 32)
	require.NoError(t, c.Set("acc-1", key))

	got, ok := c.Get("acc-1")
	require.True(t, ok)
	assert.Equal(t, key, got)

	// Persisted record is base64, not raw key bytes.
	persisted := store.Persisted()
	require.Contains(t, persisted, "acc-1")
	assert.NotContains(t, persisted["acc-1"].Value, string(key))
}

func TestMasterKeyCache_CorruptEntryEvicted(t *testing.T) {
	store := cache.NewMemoryStore()
	now := time.Now()
	store.Seed(map[string]cache.Entry{
		"bad-base64": {Value: "!!!not-base64!!!", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		"bad-length": {Value: "c2hvcnQ=", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	})

	c, err := cache.NewMasterKeyCache(store, time.Minute, time.Hour, testLogger())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, ok := c.Get("bad-base64")
	assert.False(t, ok)
	_, ok = c.Get("bad-length")
	assert.False(t, ok)

	assert.Empty(t, store.Persisted())
}

func TestMasterKeyCache_RemoveClearsBothLayers(t *testing.T) {
	store := cache.NewMemoryStore()
	c, err := cache.NewMasterKeyCache(store, time.Minute, time.Hour, testLogger())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set("acc-1", bytes.Repeat([]byte{1}, 32)))
	require.NoError(t, c.Remove("acc-1"))

	_, ok := c.Get("acc-1")
	assert.False(t, ok)
	assert.Empty(t, store.Persisted())
}
