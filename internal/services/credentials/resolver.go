package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/ejkkan/voddly-sub005/internal/cache"
	"github.com/ejkkan/voddly-sub005/internal/crypto"
	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/models"
	"github.com/ejkkan/voddly-sub005/internal/services/accounts"
	"github.com/ejkkan/voddly-sub005/internal/services/devicekeys"
)

// Options tune a single GetSourceCredentials call.
type Options struct {
	// Title and Message override the default prompt presentation.
	Title   string
	Message string

	// Validator, when set, rejects a freshly entered passphrase before
	// any derivation work happens (e.g. length policy).
	Validator func(passphrase string) error
}

// Resolver turns a source id into plaintext connection details. It owns
// the orchestration only; key material handling lives in the crypto
// provider and the two caches.
type Resolver struct {
	accounts  *accounts.Service
	devices   *devicekeys.Registry
	crypto    crypto.Provider
	passCache *cache.PassphraseCache
	keyCache  *cache.MasterKeyCache
	prompts   PassphraseProvider
	logger    *events.Logger

	// Concurrent calls for one account share a single prompt/derivation.
	group singleflight.Group

	progress crypto.ProgressFunc
}

// NewResolver creates a credential resolver.
func NewResolver(
	accountsSvc *accounts.Service,
	devices *devicekeys.Registry,
	cryptoProvider crypto.Provider,
	passCache *cache.PassphraseCache,
	keyCache *cache.MasterKeyCache,
	prompts PassphraseProvider,
	logger *events.Logger,
) *Resolver {
	return &Resolver{
		accounts:  accountsSvc,
		devices:   devices,
		crypto:    cryptoProvider,
		passCache: passCache,
		keyCache:  keyCache,
		prompts:   prompts,
		logger:    logger.WithField("service", "credentials"),
	}
}

// SetProgress installs a derivation progress hook. Reporting is cosmetic;
// it never changes the derived key.
func (r *Resolver) SetProgress(fn crypto.ProgressFunc) {
	r.progress = fn
}

// GetSourceCredentials resolves a source id to plaintext credentials.
//
// An AEAD authentication failure is ambiguous between a wrong passphrase
// and a stale cached key, so the resolver evicts both caches for the
// account and retries the whole flow exactly once with a forced fresh
// prompt. A second failure surfaces as ErrDecryptionFailed. All other
// errors propagate untouched and mutate no cache.
func (r *Resolver) GetSourceCredentials(ctx context.Context, sourceID string, opts *Options) (*models.Credentials, error) {
	if opts == nil {
		opts = &Options{}
	}

	account, source, bundle, err := r.accounts.ResolveSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	// Structural validation fails fast, before any cache read or prompt.
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	if err := source.Config.Validate(); err != nil {
		return nil, err
	}

	log := r.logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"source_id":  source.ID,
	})

	creds, err := r.attempt(ctx, account, source, bundle, opts, false)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, crypto.ErrAuthenticationFailed) {
		return nil, err
	}

	log.Warn("Decryption failed; clearing caches and re-prompting once")
	r.evictAccount(account.ID)

	creds, err = r.attempt(ctx, account, source, bundle, opts, true)
	if err == nil {
		return creds, nil
	}
	if errors.Is(err, crypto.ErrAuthenticationFailed) {
		r.evictAccount(account.ID)
		return nil, &models.CredentialError{
			Stage:     "decrypt",
			AccountID: account.ID,
			SourceID:  source.ID,
			Err:       models.ErrDecryptionFailed,
		}
	}
	return nil, err
}

// attempt runs one pass of the flow: master key (cached or derived), then
// source config decryption. freshPrompt skips both caches so the user is
// asked again after an authentication failure.
func (r *Resolver) attempt(ctx context.Context, account *models.Account, source *models.Source, bundle *models.KeyBundle, opts *Options, freshPrompt bool) (*models.Credentials, error) {
	masterKey, err := r.masterKey(ctx, account, bundle, opts, freshPrompt)
	if err != nil {
		return nil, err
	}

	plaintext, err := r.crypto.Decrypt(masterKey, source.Config.IV, source.Config.Ciphertext, algorithmForNonce(source.Config.IV))
	if err != nil {
		return nil, err
	}

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("%w: parse decrypted config: %v", models.ErrInvalidSourceConfig, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	return &creds, nil
}

// masterKey returns the unwrapped master key for the account, consulting
// the master key cache before deriving. Concurrent callers for the same
// account join one in-flight resolution, so a user is prompted at most
// once at a time.
func (r *Resolver) masterKey(ctx context.Context, account *models.Account, bundle *models.KeyBundle, opts *Options, freshPrompt bool) ([]byte, error) {
	if !freshPrompt {
		if key, ok := r.keyCache.Get(account.ID); ok {
			r.logger.WithField("account_id", account.ID).Debug("Master key cache hit")
			return key, nil
		}
	}

	key, err, _ := r.group.Do(account.ID, func() (interface{}, error) {
		// Another caller may have finished while this one queued.
		if !freshPrompt {
			if key, ok := r.keyCache.Get(account.ID); ok {
				return key, nil
			}
		}
		return r.deriveMasterKey(ctx, account, bundle, opts, freshPrompt)
	})
	if err != nil {
		return nil, err
	}

	return key.([]byte), nil
}

// deriveMasterKey obtains a passphrase, picks the key bundle via the
// device registry, derives the wrapping key, and unwraps the master key.
// On success both cache layers are populated and the passphrase entry is
// rewritten with a fresh TTL.
func (r *Resolver) deriveMasterKey(ctx context.Context, account *models.Account, accountBundle *models.KeyBundle, opts *Options, freshPrompt bool) ([]byte, error) {
	log := r.logger.WithField("account_id", account.ID)

	passphrase := ""
	cached := false
	if !freshPrompt {
		passphrase, cached = r.passCache.Get(account.ID)
	}

	if !cached {
		prompted, err := r.prompts.Prompt(ctx, account.ID, PromptOptions{
			Title:       defaultString(opts.Title, "Unlock account"),
			Message:     defaultString(opts.Message, "Enter your passphrase to decrypt this source."),
			AccountName: account.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPromptAborted, err)
		}

		if opts.Validator != nil {
			if err := opts.Validator(prompted); err != nil {
				return nil, fmt.Errorf("passphrase rejected: %w", err)
			}
		}

		passphrase = prompted
	} else {
		log.Debug("Passphrase cache hit")
	}

	bundle, err := r.devices.ResolveKeyBundle(ctx, account.ID, accountBundle, passphrase)
	if err != nil {
		return nil, err
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	log.WithField("iterations", bundle.Iterations).Debug("Deriving wrapping key")

	derived, err := r.crypto.DeriveKey(passphrase, bundle.Salt, bundle.Iterations, crypto.KDF(bundle.KDF), r.progress)
	if err != nil {
		return nil, err
	}

	masterKey, err := r.crypto.Decrypt(derived, bundle.IV, bundle.WrappedMasterKey, crypto.Algorithm(bundle.WrapAlgo))
	if err != nil {
		return nil, err
	}
	if len(masterKey) != crypto.KeySize {
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", models.ErrInvalidKeyData, len(masterKey))
	}

	// The unwrap authenticated, so the passphrase is known good: refresh
	// both caches.
	if err := r.keyCache.Set(account.ID, masterKey); err != nil {
		log.WithError(err).Warn("Failed to persist master key cache entry")
	}
	if err := r.passCache.Set(account.ID, passphrase); err != nil {
		log.WithError(err).Warn("Failed to persist passphrase cache entry")
	}

	return masterKey, nil
}

// evictAccount clears both cache layers for the account. Eviction must
// not fail the retry, so persistence errors are only logged.
func (r *Resolver) evictAccount(accountID string) {
	if err := r.passCache.Remove(accountID); err != nil {
		r.logger.WithError(err).Warn("Failed to evict passphrase entry")
	}
	if err := r.keyCache.Remove(accountID); err != nil {
		r.logger.WithError(err).Warn("Failed to evict master key entry")
	}
}

// algorithmForNonce infers the source config cipher from its nonce
// length: 12 bytes is AES-256-GCM, 24 is XChaCha20-Poly1305.
func algorithmForNonce(nonce []byte) crypto.Algorithm {
	if len(nonce) == models.NonceSizeXChaCha {
		return crypto.AlgoXChaCha
	}
	return crypto.AlgoAESGCM
}

func defaultString(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
