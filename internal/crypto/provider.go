package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm names an AEAD construction as advertised by the backend.
type Algorithm string

const (
	AlgoAESGCM  Algorithm = "aes-gcm-256"
	AlgoXChaCha Algorithm = "xchacha20poly1305"
)

// KDF names a key derivation scheme as advertised by the backend.
type KDF string

const (
	KDFPBKDF2   KDF = "pbkdf2"
	KDFArgon2id KDF = "argon2id"
)

const (
	KeySize  = 32 // AES-256 / XChaCha20 key length
	SaltSize = 16
)

// Errors. Parameter errors are distinguishable from tag verification
// failures; callers use the difference to decide between re-prompting for
// a passphrase and surfacing a hard error.
var (
	ErrInvalidKeySize       = errors.New("invalid key size")
	ErrInvalidNonceSize     = errors.New("invalid nonce size")
	ErrInvalidSaltSize      = errors.New("invalid salt size")
	ErrInvalidIterations    = errors.New("invalid iteration count")
	ErrUnsupportedAlgorithm = errors.New("unsupported cipher algorithm")
	ErrUnsupportedKDF       = errors.New("unsupported key derivation scheme")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// NonceSize returns the required nonce length for the algorithm.
func (a Algorithm) NonceSize() (int, error) {
	switch a {
	case AlgoAESGCM, "":
		return 12, nil
	case AlgoXChaCha:
		return chacha20poly1305.NonceSizeX, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

// CipherProvider implements Provider with AES-256-GCM and
// XChaCha20-Poly1305.
type CipherProvider struct{}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &CipherProvider{}
}

// newAEAD validates the key and constructs the AEAD for algo. An empty
// algo defaults to AES-256-GCM, matching the backend's default.
func (p *CipherProvider) newAEAD(key []byte, algo Algorithm) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}

	switch algo {
	case AlgoAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create GCM: %w", err)
		}
		return aead, nil
	case AlgoXChaCha:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create XChaCha20: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(algo))
	}
}

// Encrypt seals plaintext under key with the given nonce. The returned
// ciphertext includes the authentication tag.
func (p *CipherProvider) Encrypt(key, nonce, plaintext []byte, algo Algorithm) ([]byte, error) {
	aead, err := p.newAEAD(key, algo)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidNonceSize, aead.NonceSize(), len(nonce))
	}

	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext and verifies its tag. Tag verification failure
// (wrong key, tampered data) returns ErrAuthenticationFailed; no partial
// plaintext is ever returned.
func (p *CipherProvider) Decrypt(key, nonce, ciphertext []byte, algo Algorithm) ([]byte, error) {
	aead, err := p.newAEAD(key, algo)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidNonceSize, aead.NonceSize(), len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}
