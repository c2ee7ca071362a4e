package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams keeps Argon2id cheap in tests.
var fastParams = Params{Time: 1, Memory: 1024, Threads: 1}

func TestDeriveKey(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}

	key := fastParams.DeriveKey([]byte("test-password-123"), salt)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	if again := fastParams.DeriveKey([]byte("test-password-123"), salt); !bytes.Equal(key, again) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	if other := fastParams.DeriveKey([]byte("different-password"), salt); bytes.Equal(key, other) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	otherSalt, _ := NewSalt()
	if other := fastParams.DeriveKey([]byte("test-password-123"), otherSalt); bytes.Equal(key, other) {
		t.Error("DeriveKey() with different salt should produce different key")
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Memory != 64*1024 || p.Time != 3 || p.Threads != 4 {
		t.Errorf("DefaultParams() = %+v, want 64MiB/3/4", p)
	}
	if !p.Valid() {
		t.Error("DefaultParams() should be valid")
	}
	if (Params{Time: 1, Memory: 0, Threads: 1}).Valid() {
		t.Error("zero memory should be invalid")
	}
}

func TestNormalizePassphrase(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	if !bytes.Equal(NormalizePassphrase(composed), NormalizePassphrase(decomposed)) {
		t.Error("composed and decomposed forms should normalize to the same bytes")
	}
	if got := string(NormalizePassphrase("hunter2")); got != "hunter2" {
		t.Errorf("ASCII passphrase changed: %q", got)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, _ := RandomBytes(KeyLength)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("a")},
		{"text", []byte("the quick brown fox")},
		{"binary", bytes.Repeat([]byte{0x00, 0xff}, 512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Seal(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			got, err := Open(key, blob)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Open() = %x, want %x", got, tt.plaintext)
			}
		})
	}
}

func TestSealProducesUniqueNonce(t *testing.T) {
	key, _ := RandomBytes(KeyLength)
	a, _ := Seal(key, []byte("same"))
	b, _ := Seal(key, []byte("same"))
	if bytes.Equal(a[:NonceLength], b[:NonceLength]) {
		t.Error("two seals reused a nonce")
	}
}

func TestOpenWrongKey(t *testing.T) {
	key, _ := RandomBytes(KeyLength)
	other, _ := RandomBytes(KeyLength)

	blob, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := Open(other, blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenTampered(t *testing.T) {
	key, _ := RandomBytes(KeyLength)
	blob, _ := Seal(key, []byte("secret"))
	blob[len(blob)-1] ^= 0x01

	if _, err := Open(key, blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	key, _ := RandomBytes(KeyLength)
	if _, err := Open(key, make([]byte, NonceLength)); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := Seal(make([]byte, n), []byte("x")); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Seal with %d-byte key: expected ErrInvalidKeyLength, got %v", n, err)
		}
		if _, err := Open(make([]byte, n), make([]byte, 64)); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Open with %d-byte key: expected ErrInvalidKeyLength, got %v", n, err)
		}
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte("sensitive")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d not wiped: %x", i, b)
		}
	}
	SecureWipe(nil)
}
