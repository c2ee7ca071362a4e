package credential

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
)

// Secret Service names. They are fixed by the freedesktop specification.
const (
	secretsBusName = "org.freedesktop.secrets"
	secretsPath    = dbus.ObjectPath("/org/freedesktop/secrets")
	serviceIface   = "org.freedesktop.Secret.Service"

	methodOpenSession = serviceIface + ".OpenSession"
	methodSearchItems = serviceIface + ".SearchItems"
	methodGetSecrets  = serviceIface + ".GetSecrets"

	// algorithmPlain negotiates no transport encryption. Acceptable only
	// because the session bus is a local, access-controlled transport.
	algorithmPlain = "plain"

	attrService = "service"
)

// secretValue mirrors the Secret Service (oayays) struct.
type secretValue struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// busObject is the part of dbus.BusObject the client uses.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// dialFunc opens a fresh bus connection and returns the service object and a
// closer for it.
type dialFunc func() (busObject, func(), error)

// SecretServiceClient reads secrets straight from the Secret Service daemon
// over the session bus. It is the fallback when no native binding exists.
type SecretServiceClient struct {
	dial dialFunc
}

// NewSecretServiceClient returns a client that dials the session bus for
// every lookup.
func NewSecretServiceClient() *SecretServiceClient {
	return &SecretServiceClient{dial: dialSessionBus}
}

func dialSessionBus() (busObject, func(), error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, err
	}
	return conn.Object(secretsBusName, secretsPath), func() { conn.Close() }, nil
}

// Resolve implements Provider. It opens a plain session, searches for items
// tagged with service, and reads the first unlocked one. The session is left
// for the daemon to reap when the connection closes.
func (c *SecretServiceClient) Resolve(ctx context.Context, service string) (Secret, error) {
	obj, closeFn, err := c.dial()
	if err != nil {
		return Secret{}, unavailable("connect session bus", err)
	}
	defer closeFn()

	var output dbus.Variant
	var session dbus.ObjectPath
	err = obj.CallWithContext(ctx, methodOpenSession, 0, algorithmPlain, dbus.MakeVariant("")).
		Store(&output, &session)
	if err != nil {
		return Secret{}, unavailable("OpenSession", err)
	}

	var unlocked, locked []dbus.ObjectPath
	err = obj.CallWithContext(ctx, methodSearchItems, 0, map[string]string{attrService: service}).
		Store(&unlocked, &locked)
	if err != nil {
		return Secret{}, unavailable("SearchItems", err)
	}
	if len(unlocked) == 0 {
		return Secret{}, ErrSecretNotFound
	}

	// One secret per service: the first unlocked item wins.
	item := unlocked[0]
	var secrets map[dbus.ObjectPath]secretValue
	err = obj.CallWithContext(ctx, methodGetSecrets, 0, []dbus.ObjectPath{item}, session).
		Store(&secrets)
	if err != nil {
		return Secret{}, unavailable("GetSecrets", err)
	}

	value, ok := secrets[item]
	if !ok {
		return Secret{}, ErrSecretNotFound
	}
	if !utf8.Valid(value.Value) {
		return Secret{}, fmt.Errorf("%w: secret for %s is not valid UTF-8", ErrCredentialUnavailable, service)
	}
	return Secret{b: value.Value}, nil
}

// Save implements Provider. Writes always go through the native provider.
func (c *SecretServiceClient) Save(context.Context, string, Secret) error {
	return ErrReadOnly
}

// Delete implements Provider.
func (c *SecretServiceClient) Delete(context.Context, string) error {
	return ErrReadOnly
}

// Source implements Provider.
func (c *SecretServiceClient) Source() Source {
	return SourceProtocol
}
