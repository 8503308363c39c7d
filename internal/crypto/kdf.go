package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// progressChunk is the number of PBKDF2 rounds between progress reports.
const progressChunk = 10000

// DeriveKey stretches a passphrase into a 32-byte key with
// PBKDF2-HMAC-SHA256. The iteration count comes from the server's key
// bundle. Requests for argon2id fail with ErrUnsupportedKDF rather than
// silently deriving under a different scheme.
//
// When progress is non-nil the derivation runs in fixed-size chunks and
// reports after each one; the chunked path produces the same key as the
// one-shot path.
func (p *CipherProvider) DeriveKey(passphrase string, salt []byte, iterations int, kdf KDF, progress ProgressFunc) ([]byte, error) {
	switch kdf {
	case KDFPBKDF2, "":
		// Supported.
	case KDFArgon2id:
		return nil, fmt.Errorf("%w: argon2id not yet implemented", ErrUnsupportedKDF)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKDF, string(kdf))
	}

	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSaltSize, SaltSize, len(salt))
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}

	if progress == nil {
		return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New), nil
	}

	progress(0, "Deriving key")
	key := deriveChunked(passphrase, salt, iterations, progress)
	progress(1, "Key derived")
	return key, nil
}

// deriveChunked is PBKDF2-HMAC-SHA256 restricted to a single output block
// (KeySize == SHA-256 digest size), unrolled so progress can be reported
// between chunks of rounds. Output is identical to pbkdf2.Key.
func deriveChunked(passphrase string, salt []byte, iterations int, progress ProgressFunc) []byte {
	mac := hmac.New(sha256.New, []byte(passphrase))

	// U1 = HMAC(P, S || INT(1))
	mac.Write(salt)
	mac.Write([]byte{0, 0, 0, 1})
	u := mac.Sum(nil)

	dk := make([]byte, KeySize)
	copy(dk, u)

	for done := 1; done < iterations; {
		end := done + progressChunk
		if end > iterations {
			end = iterations
		}

		for ; done < end; done++ {
			mac.Reset()
			mac.Write(u)
			u = mac.Sum(u[:0])
			for i := range dk {
				dk[i] ^= u[i]
			}
		}

		if done < iterations {
			progress(float64(done)/float64(iterations), "Deriving key")
		}
	}

	return dk
}
