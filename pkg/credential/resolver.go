package credential

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Resolver reads through the native provider and falls back to a protocol
// client when the native store is unavailable. Writes always go to the
// native provider.
type Resolver struct {
	native   Provider
	fallback Provider
	log      logrus.FieldLogger

	mu   sync.Mutex
	last Source
}

// NewResolver returns a Resolver. fallback may be nil.
func NewResolver(native, fallback Provider, log logrus.FieldLogger) *Resolver {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Resolver{
		native:   native,
		fallback: fallback,
		log:      log.WithField("component", "credential"),
		last:     native.Source(),
	}
}

// NewDefaultResolver wires the OS keyring with the Secret Service fallback.
func NewDefaultResolver(log logrus.FieldLogger) *Resolver {
	return NewResolver(NewKeyring(), NewSecretServiceClient(), log)
}

// Resolve implements Provider.
func (r *Resolver) Resolve(ctx context.Context, service string) (Secret, error) {
	secret, err := r.native.Resolve(ctx, service)
	if err == nil {
		r.setLast(r.native.Source())
		return secret, nil
	}
	if !errors.Is(err, ErrCredentialUnavailable) || r.fallback == nil {
		return Secret{}, err
	}

	r.log.WithError(err).WithField("fallback", r.fallback.Source()).
		Debug("native credential store unavailable, trying fallback")

	secret, ferr := r.fallback.Resolve(ctx, service)
	if ferr != nil {
		if errors.Is(ferr, ErrSecretNotFound) {
			return Secret{}, ferr
		}
		return Secret{}, errors.Join(err, ferr)
	}
	r.setLast(r.fallback.Source())
	return secret, nil
}

// Save implements Provider.
func (r *Resolver) Save(ctx context.Context, service string, secret Secret) error {
	return r.native.Save(ctx, service, secret)
}

// Delete implements Provider.
func (r *Resolver) Delete(ctx context.Context, service string) error {
	return r.native.Delete(ctx, service)
}

// Source reports the provider behind the last successful resolution.
func (r *Resolver) Source() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Resolver) setLast(s Source) {
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
}
