package credential

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// protocolMemory is a Memory that reports itself as the protocol client.
type protocolMemory struct{ *Memory }

func (protocolMemory) Source() Source { return SourceProtocol }

func TestResolverPrefersNative(t *testing.T) {
	ctx := context.Background()
	native := NewMemory()
	fallback := protocolMemory{NewMemory()}
	_ = native.Save(ctx, ServiceName, NewSecret("from-native"))
	_ = fallback.Save(ctx, ServiceName, NewSecret("from-fallback"))

	r := NewResolver(native, fallback, nil)
	got, err := r.Resolve(ctx, ServiceName)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Reveal() != "from-native" {
		t.Errorf("Resolve() = %q, want from-native", got.Reveal())
	}
	if r.Source() != SourceMemory {
		t.Errorf("Source() = %v, want the native provider's source", r.Source())
	}
}

func TestResolverNotFoundDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	fallback := protocolMemory{NewMemory()}
	_ = fallback.Save(ctx, ServiceName, NewSecret("from-fallback"))

	r := NewResolver(NewMemory(), fallback, nil)
	if _, err := r.Resolve(ctx, ServiceName); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestResolverFallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	native := NewMemory()
	native.FailWith(fmt.Errorf("%w: unsupported platform", ErrCredentialUnavailable))
	fallback := protocolMemory{NewMemory()}
	_ = fallback.Save(ctx, ServiceName, NewSecret("from-fallback"))

	r := NewResolver(native, fallback, nil)
	got, err := r.Resolve(ctx, ServiceName)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Reveal() != "from-fallback" {
		t.Errorf("Resolve() = %q, want from-fallback", got.Reveal())
	}
	if r.Source() != SourceProtocol {
		t.Errorf("Source() = %v, want secret-service", r.Source())
	}
}

func TestResolverBothUnavailable(t *testing.T) {
	ctx := context.Background()
	native := NewMemory()
	native.FailWith(fmt.Errorf("%w: no keychain", ErrCredentialUnavailable))
	fallback := protocolMemory{NewMemory()}
	fallback.FailWith(fmt.Errorf("%w: no session bus", ErrCredentialUnavailable))

	r := NewResolver(native, fallback, nil)
	if _, err := r.Resolve(ctx, ServiceName); !errors.Is(err, ErrCredentialUnavailable) {
		t.Errorf("expected ErrCredentialUnavailable, got %v", err)
	}

	noFallback := NewResolver(native, nil, nil)
	if _, err := noFallback.Resolve(ctx, ServiceName); !errors.Is(err, ErrCredentialUnavailable) {
		t.Errorf("without fallback: expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestResolverWritesGoToNative(t *testing.T) {
	ctx := context.Background()
	native := NewMemory()
	fallback := protocolMemory{NewMemory()}
	r := NewResolver(native, fallback, nil)

	if err := r.Save(ctx, ServiceName, NewSecret("hunter2")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := native.Resolve(ctx, ServiceName); err != nil {
		t.Errorf("native should hold the secret: %v", err)
	}
	if _, err := fallback.Resolve(ctx, ServiceName); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("fallback should be untouched, got %v", err)
	}

	if err := r.Delete(ctx, ServiceName); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := native.Resolve(ctx, ServiceName); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound after Delete, got %v", err)
	}
}
