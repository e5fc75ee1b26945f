package sourcefile

import "github.com/kailas-cloud/ragdex/internal/domain"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// ListFilter narrows a source file listing. Zero fields match everything.
type ListFilter struct {
	ScopeID *string
	Status  domain.Status
	Limit   int
}

// Matches reports whether f passes the filter.
func (lf ListFilter) Matches(f *SourceFile) bool {
	if lf.ScopeID != nil && f.ScopeID() != *lf.ScopeID {
		return false
	}
	if lf.Status != "" && f.Status() != lf.Status {
		return false
	}
	return true
}

// EffectiveLimit returns Limit or DefaultListLimit when unset.
func (lf ListFilter) EffectiveLimit() int {
	if lf.Limit <= 0 {
		return DefaultListLimit
	}
	return lf.Limit
}
