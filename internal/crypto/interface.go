package crypto

// ProgressFunc receives derivation progress as a monotonically increasing
// fraction in [0,1] plus a short status string. Reporting is cosmetic and
// never affects the derived key.
type ProgressFunc func(fraction float64, status string)

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// Encrypt seals plaintext under key with an explicit nonce.
	Encrypt(key, nonce, plaintext []byte, algo Algorithm) ([]byte, error)

	// Decrypt opens ciphertext and verifies its authentication tag.
	Decrypt(key, nonce, ciphertext []byte, algo Algorithm) ([]byte, error)

	// DeriveKey stretches a passphrase into a 32-byte key.
	DeriveKey(passphrase string, salt []byte, iterations int, kdf KDF, progress ProgressFunc) ([]byte, error)
}
