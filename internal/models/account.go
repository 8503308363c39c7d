package models

import (
	"fmt"
	"strings"
	"time"
)

// Sizes for key material carried in a KeyBundle.
const (
	SaltSize         = 16
	NonceSizeGCM     = 12
	NonceSizeXChaCha = 24
)

// Account groups streaming sources under one subscription owner.
type Account struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Sources []Source `json:"sources,omitempty"`
}

// Source identifies one streaming provider configuration. Its connection
// details are only available as an EncryptedSourceConfig until the account
// master key has been unwrapped.
type Source struct {
	ID        string                `json:"id"`
	AccountID string                `json:"account_id"`
	Name      string                `json:"name"`
	Config    EncryptedSourceConfig `json:"encrypted_config"`
}

// KeyBundle carries the parameters needed to derive a wrapping key from a
// passphrase and unwrap the account master key. Byte fields travel base64
// encoded on the wire.
type KeyBundle struct {
	Salt             []byte `json:"salt"`
	IV               []byte `json:"iv"`
	WrappedMasterKey []byte `json:"wrapped_master_key"`
	Iterations       int    `json:"iterations"`
	KDF              string `json:"kdf,omitempty"`
	WrapAlgo         string `json:"wrap_algo,omitempty"`
}

// Validate checks the structural invariants of the bundle. It does not
// touch any cryptographic state.
func (k *KeyBundle) Validate() error {
	if len(k.Salt) != SaltSize {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidKeyData, SaltSize, len(k.Salt))
	}
	if len(k.IV) != NonceSizeGCM && len(k.IV) != NonceSizeXChaCha {
		return fmt.Errorf("%w: iv must be %d or %d bytes, got %d",
			ErrInvalidKeyData, NonceSizeGCM, NonceSizeXChaCha, len(k.IV))
	}
	if len(k.WrappedMasterKey) == 0 {
		return fmt.Errorf("%w: wrapped master key is empty", ErrInvalidKeyData)
	}
	if k.Iterations <= 0 {
		return fmt.Errorf("%w: iteration count missing", ErrInvalidKeyData)
	}
	return nil
}

// DeviceKeyRecord is a device-scoped KeyBundle, typically issued with a
// lower iteration count tuned to the device's compute budget.
type DeviceKeyRecord struct {
	KeyBundle

	AccountID string    `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// EncryptedSourceConfig is the AEAD-sealed connection payload attached to a
// source. It decrypts, under the account master key, to a Credentials JSON
// object.
type EncryptedSourceConfig struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// Validate checks lengths before any decryption is attempted.
func (c *EncryptedSourceConfig) Validate() error {
	if len(c.IV) != NonceSizeGCM && len(c.IV) != NonceSizeXChaCha {
		return fmt.Errorf("%w: iv must be %d or %d bytes, got %d",
			ErrInvalidSourceConfig, NonceSizeGCM, NonceSizeXChaCha, len(c.IV))
	}
	if len(c.Ciphertext) == 0 {
		return fmt.Errorf("%w: ciphertext is empty", ErrInvalidSourceConfig)
	}
	return nil
}

// Credentials are the plaintext connection details for a source. They are
// never persisted; callers hold them only for the lifetime of a session.
type Credentials struct {
	Server             string `json:"server"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	ContainerExtension string `json:"containerExtension,omitempty"`
	VideoCodec         string `json:"videoCodec,omitempty"`
	AudioCodec         string `json:"audioCodec,omitempty"`
}

// Validate checks that the decrypted payload carries a usable endpoint.
func (c *Credentials) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("%w: server is empty", ErrInvalidSourceConfig)
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is empty", ErrInvalidSourceConfig)
	}
	return nil
}

// DeviceStatus is the backend's answer to a device registration check.
type DeviceStatus struct {
	IsRegistered       bool `json:"is_registered"`
	CanAutoRegister    bool `json:"can_auto_register"`
	RequiresPassphrase bool `json:"requires_passphrase"`
	DeviceCount        int  `json:"device_count,omitempty"`
	MaxDevices         int  `json:"max_devices,omitempty"`
}
