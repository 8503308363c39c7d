package credentials_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejkkan/voddly-sub005/internal/cache"
	"github.com/ejkkan/voddly-sub005/internal/crypto"
	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/models"
	"github.com/ejkkan/voddly-sub005/internal/services/accounts"
	"github.com/ejkkan/voddly-sub005/internal/services/credentials"
	"github.com/ejkkan/voddly-sub005/internal/services/devicekeys"
	"github.com/ejkkan/voddly-sub005/internal/transport"
	"github.com/ejkkan/voddly-sub005/test/testutil"
)

// scriptedPrompt replays a fixed sequence of passphrases and counts how
// often it was asked.
type scriptedPrompt struct {
	mu     sync.Mutex
	script []string
	calls  int
	delay  time.Duration
}

func (p *scriptedPrompt) Prompt(ctx context.Context, accountID string, opts credentials.PromptOptions) (string, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx], nil
}

func (p *scriptedPrompt) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type resolverEnv struct {
	fixture   *testutil.SourceFixture
	mock      *transport.MockTransport
	prompt    *scriptedPrompt
	passCache *cache.PassphraseCache
	keyCache  *cache.MasterKeyCache
	registry  *devicekeys.Registry
	resolver  *credentials.Resolver
}

func newResolverEnv(t *testing.T, fixture *testutil.SourceFixture, script ...string) *resolverEnv {
	t.Helper()

	logger := events.NewTestLogger(events.ErrorLevel, "text", &bytes.Buffer{})

	mock := transport.NewMockTransport()
	mock.AddResponse("/accounts/list", fixture.AccountsResponse())
	mock.AddResponse("/sources/list", fixture.SourcesResponse())
	mock.AddResponse("/device/check", map[string]interface{}{
		"is_registered":     false,
		"can_auto_register": false,
	})

	passCache, err := cache.NewPassphraseCache(cache.NewMemoryStore(), 5*time.Minute, time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = passCache.Close() })

	keyCache, err := cache.NewMasterKeyCache(cache.NewMemoryStore(), 5*time.Minute, time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyCache.Close() })

	registry := devicekeys.NewRegistry(mock, "dev-1", "test-device", true, logger)
	prompt := &scriptedPrompt{script: script}

	resolver := credentials.NewResolver(
		accounts.NewService(mock, logger),
		registry,
		crypto.NewProvider(),
		passCache,
		keyCache,
		prompt,
		logger,
	)

	return &resolverEnv{
		fixture:   fixture,
		mock:      mock,
		prompt:    prompt,
		passCache: passCache,
		keyCache:  keyCache,
		registry:  registry,
		resolver:  resolver,
	}
}

func TestResolver_Success(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com", creds.Server)
	assert.Equal(t, "demo", creds.Username)
	assert.Equal(t, "demo", creds.Password)
	assert.Equal(t, 1, env.prompt.Calls())

	// Both caches populated on success.
	passphrase, ok := env.passCache.Get(fixture.Account.ID)
	require.True(t, ok)
	assert.Equal(t, fixture.Passphrase, passphrase)

	key, ok := env.keyCache.Get(fixture.Account.ID)
	require.True(t, ok)
	assert.Equal(t, fixture.MasterKey, key)
}

func TestResolver_XChaChaBundle(t *testing.T) {
	cfg := testutil.DefaultFixtureConfig()
	cfg.WrapAlgo = crypto.AlgoXChaCha
	fixture := testutil.NewSourceFixture(t, cfg)
	env := newResolverEnv(t, fixture, fixture.Passphrase)

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
}

func TestResolver_PassphraseCacheShortCircuitsPrompt(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, "should-not-be-used")

	require.NoError(t, env.passCache.Set(fixture.Account.ID, fixture.Passphrase))

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
	assert.Equal(t, 0, env.prompt.Calls())
}

func TestResolver_MasterKeyCacheSkipsDerivation(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, "should-not-be-used")

	// Only the unwrapped key is cached; no passphrase anywhere.
	require.NoError(t, env.keyCache.Set(fixture.Account.ID, fixture.MasterKey))

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
	assert.Equal(t, 0, env.prompt.Calls())
}

func TestResolver_RetryOnceThenSucceed(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, "wrong-passphrase", fixture.Passphrase)

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
	assert.Equal(t, 2, env.prompt.Calls())

	// The second, correct passphrase is what survives in the cache.
	passphrase, ok := env.passCache.Get(fixture.Account.ID)
	require.True(t, ok)
	assert.Equal(t, fixture.Passphrase, passphrase)
}

func TestResolver_RetryOnceBound(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, "wrong-passphrase")

	_, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDecryptionFailed)

	// Prompted exactly twice, then gave up.
	assert.Equal(t, 2, env.prompt.Calls())

	// Nothing usable is left behind.
	_, ok := env.passCache.Get(fixture.Account.ID)
	assert.False(t, ok)
	_, ok = env.keyCache.Get(fixture.Account.ID)
	assert.False(t, ok)
}

func TestResolver_StaleCachedKeyHealsWithoutSecondFailure(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)

	// A corrupt cached key must not be retried silently: the resolver
	// clears it and re-prompts.
	stale := bytes.Repeat([]byte{0xEE}, crypto.KeySize)
	require.NoError(t, env.keyCache.Set(fixture.Account.ID, stale))

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
	assert.Equal(t, 1, env.prompt.Calls())

	key, ok := env.keyCache.Get(fixture.Account.ID)
	require.True(t, ok)
	assert.Equal(t, fixture.MasterKey, key)
}

func TestResolver_ValidationFailsBeforePrompt(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	fixture.KeyBundle.Salt = []byte("short")
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/sources/list", fixture.SourcesResponse())

	_, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidKeyData)
	assert.Equal(t, 0, env.prompt.Calls())
}

func TestResolver_InvalidSourceConfigFailsFast(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	fixture.Source.Config.Ciphertext = nil
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/sources/list", fixture.SourcesResponse())

	_, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidSourceConfig)
	assert.Equal(t, 0, env.prompt.Calls())
}

func TestResolver_UnsupportedKDFNeverRetries(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	fixture.KeyBundle.KDF = string(crypto.KDFArgon2id)
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/sources/list", fixture.SourcesResponse())

	_, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	assert.ErrorIs(t, err, crypto.ErrUnsupportedKDF)
	assert.Equal(t, 1, env.prompt.Calls())
}

func TestResolver_DeviceFallbackWithoutRegistration(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/device/check", map[string]interface{}{
		"is_registered":     false,
		"can_auto_register": false,
	})

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)

	// Fallback must not attempt registration.
	assert.Empty(t, env.mock.Requests("/device/register"))
	assert.Equal(t, devicekeys.StatusNotRegistered, env.registry.Status(fixture.Account.ID))
}

func TestResolver_PrefersDeviceScopedKey(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/device/check", map[string]interface{}{
		"is_registered":     true,
		"can_auto_register": false,
	})
	env.mock.AddResponse("/device/key", fixture.DeviceKeyResponse(t, "dev-1", 500))

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)

	require.Len(t, env.mock.Requests("/device/key"), 1)
	assert.Equal(t, devicekeys.StatusRegistered, env.registry.Status(fixture.Account.ID))
}

func TestResolver_AutoRegistersDevice(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/device/check", map[string]interface{}{
		"is_registered":     false,
		"can_auto_register": true,
	})
	env.mock.AddResponse("/device/register", fixture.DeviceKeyResponse(t, "dev-1", 500))

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)

	require.Len(t, env.mock.Requests("/device/register"), 1)
	// Registration reuses the passphrase already obtained; no extra
	// prompt.
	assert.Equal(t, 1, env.prompt.Calls())
}

func TestResolver_RegistrationFailureFallsBack(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.mock.AddResponse("/device/check", map[string]interface{}{
		"is_registered":     false,
		"can_auto_register": true,
	})
	env.mock.AddError("/device/register", &models.APIError{
		Code: models.ErrCodeDeviceLimit, Message: "too many devices", StatusCode: 403,
	})

	creds, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
	assert.Equal(t, devicekeys.StatusLimitExceeded, env.registry.Status(fixture.Account.ID))
}

func TestResolver_SingleSourceShortcut(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)

	creds, err := env.resolver.GetSourceCredentials(context.Background(), "no-such-source", nil)
	require.NoError(t, err)
	assert.Equal(t, fixture.Credentials, *creds)
}

func TestResolver_ValidatorRejectsPassphrase(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, "x")

	_, err := env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, &credentials.Options{
		Validator: func(passphrase string) error {
			if len(passphrase) < 8 {
				return assert.AnError
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestResolver_ConcurrentCallsShareOnePrompt(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)
	env.prompt.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*models.Credentials, 4)
	errs := make([]error, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.resolver.GetSourceCredentials(context.Background(), fixture.Source.ID, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fixture.Credentials, *results[i])
	}

	assert.Equal(t, 1, env.prompt.Calls(), "concurrent callers must join one in-flight prompt")
}

func TestResolver_SourceNotFound(t *testing.T) {
	fixture := testutil.NewSourceFixture(t, testutil.DefaultFixtureConfig())
	env := newResolverEnv(t, fixture, fixture.Passphrase)

	// With more than one source the single-source shortcut is off.
	second := fixture.Source
	second.ID = "src-2"
	env.mock.AddResponse("/sources/list", map[string]interface{}{
		"sources": []models.Source{fixture.Source, second},
		"keyData": fixture.KeyBundle,
	})

	_, err := env.resolver.GetSourceCredentials(context.Background(), "no-such-source", nil)
	assert.ErrorIs(t, err, models.ErrSourceNotFound)
}
