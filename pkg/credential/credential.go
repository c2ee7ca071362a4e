// Package credential resolves the store passphrase from the operating
// environment.
//
// Two providers exist: Keyring, backed by the OS credential store, and
// SecretServiceClient, a read-only client for the freedesktop Secret Service
// used when no native binding is available. Resolver picks between them at
// resolution time. Every lookup uses the same namespace, ServiceName, on
// both the write and the read path.
package credential

import (
	"context"
	"errors"
	"fmt"
)

const (
	// ServiceName is the process-wide credential namespace.
	ServiceName = "vaultkeeper"

	// Account is the entry name under ServiceName that holds the store
	// passphrase.
	Account = "store-passphrase"
)

// Errors
var (
	// ErrSecretNotFound means the lookup worked but nothing is saved yet.
	ErrSecretNotFound = errors.New("credential: secret not found")

	// ErrCredentialUnavailable means the credential store could not be
	// reached or is misconfigured. Callers fall back to prompting.
	ErrCredentialUnavailable = errors.New("credential: credential store unavailable")

	// ErrReadOnly is returned by providers that only support lookups.
	ErrReadOnly = errors.New("credential: provider is read-only")
)

// Source identifies which mechanism produced a secret.
type Source int

const (
	SourceNative Source = iota
	SourceProtocol
	SourceMemory
)

// String returns a human-readable representation of the source
func (s Source) String() string {
	switch s {
	case SourceNative:
		return "native"
	case SourceProtocol:
		return "secret-service"
	case SourceMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// Provider is a credential store capability.
type Provider interface {
	// Resolve returns the secret saved under service, ErrSecretNotFound
	// when there is none, or ErrCredentialUnavailable.
	Resolve(ctx context.Context, service string) (Secret, error)

	// Save stores secret under service, replacing any previous value.
	Save(ctx context.Context, service string, secret Secret) error

	// Delete removes the secret under service. Deleting a missing entry
	// returns ErrSecretNotFound.
	Delete(ctx context.Context, service string) error

	// Source reports the mechanism behind the provider.
	Source() Source
}

// Secret is key material that must never be printed or logged. Every
// formatting path renders it as [REDACTED].
type Secret struct {
	b []byte
}

const redacted = "[REDACTED]"

// NewSecret copies s into a Secret.
func NewSecret(s string) Secret {
	return Secret{b: []byte(s)}
}

// Reveal returns the secret text.
func (s Secret) Reveal() string {
	return string(s.b)
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return len(s.b) == 0
}

// Wipe zeroes the secret bytes in place.
func (s Secret) Wipe() {
	for i := range s.b {
		s.b[i] = 0
	}
}

func (Secret) String() string   { return redacted }
func (Secret) GoString() string { return redacted }

// Format implements fmt.Formatter for every verb.
func (Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

// MarshalText keeps encoders from emitting the value.
func (Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCredentialUnavailable, op, err)
}
