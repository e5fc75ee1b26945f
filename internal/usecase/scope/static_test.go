package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

func TestStatic_Mapped(t *testing.T) {
	r := NewStatic(map[string]string{"hotel-a": "17"})

	id, err := r.Resolve(context.Background(), " hotel-a ")
	if err != nil || id != "17" {
		t.Fatalf("expected 17, got %q, %v", id, err)
	}

	_, err = r.Resolve(context.Background(), "hotel-z")
	if !errors.Is(err, domain.ErrUnknownScope) {
		t.Fatalf("expected ErrUnknownScope, got %v", err)
	}
}

func TestStatic_Identity(t *testing.T) {
	r := NewStatic(nil)

	id, err := r.Resolve(context.Background(), "42")
	if err != nil || id != "42" {
		t.Fatalf("expected identity, got %q, %v", id, err)
	}
}

func TestStatic_Unscoped(t *testing.T) {
	r := NewStatic(map[string]string{"a": "1"})

	id, err := r.Resolve(context.Background(), "")
	if err != nil || id != "" {
		t.Fatalf("expected unscoped, got %q, %v", id, err)
	}
}
