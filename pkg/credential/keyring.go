package credential

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"
)

// Keyring is the native provider: macOS Keychain, Windows Credential
// Manager, or the platform's default secret store.
type Keyring struct {
	account string
}

// NewKeyring returns a native provider storing entries under Account.
func NewKeyring() *Keyring {
	return &Keyring{account: Account}
}

// Resolve implements Provider.
func (k *Keyring) Resolve(_ context.Context, service string) (Secret, error) {
	value, err := keyring.Get(service, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Secret{}, ErrSecretNotFound
		}
		return Secret{}, unavailable("keyring get", err)
	}
	return NewSecret(value), nil
}

// Save implements Provider.
func (k *Keyring) Save(_ context.Context, service string, secret Secret) error {
	if err := keyring.Set(service, k.account, secret.Reveal()); err != nil {
		return unavailable("keyring set", err)
	}
	return nil
}

// Delete implements Provider.
func (k *Keyring) Delete(_ context.Context, service string) error {
	if err := keyring.Delete(service, k.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSecretNotFound
		}
		return unavailable("keyring delete", err)
	}
	return nil
}

// Source implements Provider.
func (k *Keyring) Source() Source {
	return SourceNative
}
