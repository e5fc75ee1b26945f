package request

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in characters.
	MaxQueryLength   = 4096
	DefaultLimit     = 5
	MaxLimit         = 100
	DefaultThreshold = 0.5
)

// Request is a validated search_documents call.
type Request struct {
	query     string
	limit     int
	threshold float64
	scope     string
}

// New validates and normalizes search parameters.
// A non-positive limit falls back to DefaultLimit; an empty scope means unscoped.
func New(query string, limit int, threshold float64, scope string) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		return Request{}, fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	if threshold < 0 || threshold > 1 {
		return Request{}, fmt.Errorf("threshold must be between 0 and 1")
	}

	return Request{
		query:     query,
		limit:     limit,
		threshold: threshold,
		scope:     strings.TrimSpace(scope),
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Limit returns the maximum number of hits.
func (r *Request) Limit() int { return r.limit }

// Threshold returns the exclusive lower bound on similarity.
func (r *Request) Threshold() float64 { return r.threshold }

// Scope returns the scope name, empty when unscoped.
func (r *Request) Scope() string { return r.scope }

// Scoped reports whether a scope was supplied.
func (r *Request) Scoped() bool { return r.scope != "" }
