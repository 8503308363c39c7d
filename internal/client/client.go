package client

import (
	"fmt"
	"path/filepath"

	"github.com/ejkkan/voddly-sub005/internal/cache"
	"github.com/ejkkan/voddly-sub005/internal/config"
	"github.com/ejkkan/voddly-sub005/internal/crypto"
	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/services/accounts"
	"github.com/ejkkan/voddly-sub005/internal/services/credentials"
	"github.com/ejkkan/voddly-sub005/internal/services/devicekeys"
	"github.com/ejkkan/voddly-sub005/internal/transport"
)

// Client wires the credential subsystem together: transport, caches,
// account lookups, device key discovery, and the credential resolver.
type Client struct {
	Accounts    *accounts.Service
	Devices     *devicekeys.Registry
	Credentials *credentials.Resolver

	Passphrases *cache.PassphraseCache
	MasterKeys  *cache.MasterKeyCache

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
}

// New creates a client from config. The passphrase provider is the one
// UI capability the caller must supply; everything else is assembled
// here.
func New(cfg *config.Config, prompts credentials.PassphraseProvider, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	transportClient := transport.NewTransport(&cfg.API, logger)
	cryptoProvider := crypto.NewProvider()

	passStore, err := newStore(cfg, "passphrases")
	if err != nil {
		return nil, err
	}
	keyStore, err := newStore(cfg, "master_keys")
	if err != nil {
		return nil, err
	}

	passCache, err := cache.NewPassphraseCache(passStore, cfg.Cache.PassphraseTTL, cfg.Cache.SweepInterval, logger)
	if err != nil {
		return nil, err
	}
	keyCache, err := cache.NewMasterKeyCache(keyStore, cfg.Cache.MasterKeyTTL, cfg.Cache.SweepInterval, logger)
	if err != nil {
		_ = passCache.Close()
		return nil, err
	}

	deviceID, err := devicekeys.LoadOrCreateDeviceID(filepath.Join(cfg.Storage.DataDir, "device_id"))
	if err != nil {
		_ = passCache.Close()
		_ = keyCache.Close()
		return nil, err
	}

	accountsSvc := accounts.NewService(transportClient, logger)
	registry := devicekeys.NewRegistry(transportClient, deviceID, cfg.Device.Name, cfg.Device.AutoRegister, logger)

	resolver := credentials.NewResolver(
		accountsSvc,
		registry,
		cryptoProvider,
		passCache,
		keyCache,
		prompts,
		logger,
	)

	return &Client{
		Accounts:    accountsSvc,
		Devices:     registry,
		Credentials: resolver,
		Passphrases: passCache,
		MasterKeys:  keyCache,
		config:      cfg,
		logger:      logger,
		transport:   transportClient,
	}, nil
}

// newStore selects the cache persistence backend. Both backends keep
// records under the 0700 session directory.
func newStore(cfg *config.Config, name string) (cache.Store, error) {
	switch cfg.Storage.CacheBackend {
	case "sqlite":
		return cache.NewSQLiteStore(filepath.Join(cfg.Storage.SessionDir, "session.db"), name)
	case "json":
		return cache.NewJSONStore(filepath.Join(cfg.Storage.SessionDir, name+".json"))
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Storage.CacheBackend)
	}
}

// SetToken installs the API auth token on the transport.
func (c *Client) SetToken(token string) {
	c.transport.SetToken(token)
}

// SignOut synchronously removes all cached secret material for the
// account. By the time this returns, neither cache can serve the
// account, in memory or on disk.
func (c *Client) SignOut(accountID string) error {
	c.logger.WithField("account_id", accountID).Info("Signing out account")

	c.Devices.ClearAccount(accountID)
	c.Accounts.ClearCache()

	if err := c.Passphrases.Remove(accountID); err != nil {
		return fmt.Errorf("clear passphrase cache: %w", err)
	}
	if err := c.MasterKeys.Remove(accountID); err != nil {
		return fmt.Errorf("clear master key cache: %w", err)
	}
	return nil
}

// Close releases cache stores and the transport.
func (c *Client) Close() error {
	var firstErr error
	if err := c.Passphrases.Close(); err != nil {
		firstErr = err
	}
	if err := c.MasterKeys.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.transport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
