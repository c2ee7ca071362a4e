// Package crypto provides the key material primitives for the vaultkeeper store.
//
// The store never sees a passphrase directly. A passphrase is normalized,
// stretched with Argon2id into a key-encryption key (KEK), and the KEK
// unwraps a random data key that seals every value written to the store.
//
// # Example Usage
//
//	params := crypto.DefaultParams()
//	salt, _ := crypto.NewSalt()
//	kek := params.DeriveKey(crypto.NormalizePassphrase("hunter2"), salt)
//	defer crypto.SecureWipe(kek)
//
//	blob, err := crypto.Seal(kek, dataKey)
//	dataKey, err := crypto.Open(kek, blob)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the blob cannot hold a nonce and a GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Params holds the Argon2id cost parameters. They are persisted next to the
// salt so a store created with one set of costs keeps opening after the
// defaults change.
type Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams returns the OWASP-recommended Argon2id costs
// (64 MB, 3 iterations, 4 lanes).
func DefaultParams() Params {
	return Params{Time: 3, Memory: 64 * 1024, Threads: 4}
}

// Valid reports whether every cost is non-zero.
func (p Params) Valid() bool {
	return p.Time > 0 && p.Memory > 0 && p.Threads > 0
}

// DeriveKey stretches passphrase into a 256-bit key using Argon2id.
func (p Params) DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, KeyLength)
}

// NormalizePassphrase returns the NFC form of passphrase as bytes.
// The same password typed through different input methods can arrive
// composed or decomposed; both must derive the same key.
func NormalizePassphrase(passphrase string) []byte {
	return norm.NFC.Bytes([]byte(passphrase))
}

// NewSalt returns SaltLength bytes from crypto/rand.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltLength)
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext with AES-256-GCM and returns nonce||ciphertext||tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(NonceLength)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. A wrong key or a tampered blob yields ErrDecryptionFailed.
func Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, blob[:NonceLength], blob[NonceLength:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
