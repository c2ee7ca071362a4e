package credential

import (
	"context"
	"sync"
)

// Memory is an in-process Provider for tests and embedding callers.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
	err     error
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// FailWith makes every subsequent call return err. A nil err clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Resolve implements Provider.
func (m *Memory) Resolve(_ context.Context, service string) (Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Secret{}, m.err
	}
	v, ok := m.entries[service]
	if !ok {
		return Secret{}, ErrSecretNotFound
	}
	return NewSecret(v), nil
}

// Save implements Provider.
func (m *Memory) Save(_ context.Context, service string, secret Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[service] = secret.Reveal()
	return nil
}

// Delete implements Provider.
func (m *Memory) Delete(_ context.Context, service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.entries[service]; !ok {
		return ErrSecretNotFound
	}
	delete(m.entries, service)
	return nil
}

// Source implements Provider.
func (m *Memory) Source() Source {
	return SourceMemory
}
