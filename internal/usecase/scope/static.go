// Package scope resolves the scope names used by callers to the scope ids
// stored on source files.
package scope

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Static resolves names from a fixed map. With no map every name resolves
// to itself.
type Static struct {
	ids map[string]string
}

// NewStatic creates a resolver over name -> id.
func NewStatic(ids map[string]string) *Static {
	return &Static{ids: ids}
}

// Resolve returns the scope id for name. The empty name is the unscoped
// scope and resolves to "".
func (s *Static) Resolve(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	if len(s.ids) == 0 {
		return name, nil
	}
	id, ok := s.ids[name]
	if !ok {
		return "", fmt.Errorf("scope %q: %w", name, domain.ErrUnknownScope)
	}
	return id, nil
}
