// Package testutil builds encrypted fixtures for credential flow tests:
// a real key bundle wrapped under a known passphrase, plus a source
// config sealed under the bundle's master key.
package testutil

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ejkkan/voddly-sub005/internal/crypto"
	"github.com/ejkkan/voddly-sub005/internal/models"
)

// SourceFixture is a fully paired account/source/key-bundle set: the
// wrapped master key unwraps with Passphrase, and the source config
// decrypts to Credentials with the unwrapped key.
type SourceFixture struct {
	Account     models.Account
	Source      models.Source
	KeyBundle   models.KeyBundle
	MasterKey   []byte
	Passphrase  string
	Credentials models.Credentials
}

// FixtureConfig tunes fixture generation.
type FixtureConfig struct {
	AccountID  string
	SourceID   string
	Passphrase string
	Iterations int
	WrapAlgo   crypto.Algorithm
}

// DefaultFixtureConfig uses a small iteration count so tests stay fast.
func DefaultFixtureConfig() FixtureConfig {
	return FixtureConfig{
		AccountID:  "acc-1",
		SourceID:   "src-1",
		Passphrase: "correct-horse-battery",
		Iterations: 1000,
		WrapAlgo:   crypto.AlgoAESGCM,
	}
}

// NewSourceFixture builds a fixture by running the real encryption path
// in reverse: derive, wrap, seal.
func NewSourceFixture(t *testing.T, cfg FixtureConfig) *SourceFixture {
	t.Helper()

	provider := crypto.NewProvider()

	nonceSize, err := cfg.WrapAlgo.NonceSize()
	require.NoError(t, err)

	salt := RandomBytes(t, crypto.SaltSize)
	masterKey := RandomBytes(t, crypto.KeySize)

	derived, err := provider.DeriveKey(cfg.Passphrase, salt, cfg.Iterations, crypto.KDFPBKDF2, nil)
	require.NoError(t, err)

	wrapIV := RandomBytes(t, nonceSize)
	wrapped, err := provider.Encrypt(derived, wrapIV, masterKey, cfg.WrapAlgo)
	require.NoError(t, err)

	creds := models.Credentials{
		Server:   "http://example.com",
		Username: "demo",
		Password: "demo",
	}
	plaintext, err := json.Marshal(creds)
	require.NoError(t, err)

	cfgIV := RandomBytes(t, nonceSize)
	ciphertext, err := provider.Encrypt(masterKey, cfgIV, plaintext, cfg.WrapAlgo)
	require.NoError(t, err)

	bundle := models.KeyBundle{
		Salt:             salt,
		IV:               wrapIV,
		WrappedMasterKey: wrapped,
		Iterations:       cfg.Iterations,
		KDF:              string(crypto.KDFPBKDF2),
		WrapAlgo:         string(cfg.WrapAlgo),
	}

	source := models.Source{
		ID:        cfg.SourceID,
		AccountID: cfg.AccountID,
		Name:      "Test Source",
		Config: models.EncryptedSourceConfig{
			IV:         cfgIV,
			Ciphertext: ciphertext,
		},
	}

	return &SourceFixture{
		Account: models.Account{
			ID:   cfg.AccountID,
			Name: "Test Account",
		},
		Source:      source,
		KeyBundle:   bundle,
		MasterKey:   masterKey,
		Passphrase:  cfg.Passphrase,
		Credentials: creds,
	}
}

// AccountsResponse is the canned /accounts/list payload for this fixture.
func (f *SourceFixture) AccountsResponse() map[string]interface{} {
	return map[string]interface{}{
		"accounts": []models.Account{{ID: f.Account.ID, Name: f.Account.Name}},
	}
}

// SourcesResponse is the canned /sources/list payload for this fixture.
func (f *SourceFixture) SourcesResponse() map[string]interface{} {
	return map[string]interface{}{
		"sources": []models.Source{f.Source},
		"keyData": f.KeyBundle,
	}
}

// DeviceKeyResponse wraps a device-scoped record derived from the same
// passphrase with its own (typically lower) iteration count.
func (f *SourceFixture) DeviceKeyResponse(t *testing.T, deviceID string, iterations int) map[string]interface{} {
	t.Helper()

	provider := crypto.NewProvider()

	salt := RandomBytes(t, crypto.SaltSize)
	derived, err := provider.DeriveKey(f.Passphrase, salt, iterations, crypto.KDFPBKDF2, nil)
	require.NoError(t, err)

	iv := RandomBytes(t, models.NonceSizeGCM)
	wrapped, err := provider.Encrypt(derived, iv, f.MasterKey, crypto.AlgoAESGCM)
	require.NoError(t, err)

	return map[string]interface{}{
		"success": true,
		"keyData": models.DeviceKeyRecord{
			KeyBundle: models.KeyBundle{
				Salt:             salt,
				IV:               iv,
				WrappedMasterKey: wrapped,
				Iterations:       iterations,
				KDF:              string(crypto.KDFPBKDF2),
				WrapAlgo:         string(crypto.AlgoAESGCM),
			},
			AccountID: f.Account.ID,
			DeviceID:  deviceID,
		},
	}
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(t *testing.T, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}
