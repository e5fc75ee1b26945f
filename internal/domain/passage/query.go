package passage

import "fmt"

// Query is a similarity search against the vector store.
type Query struct {
	Vector        []float32
	Limit         int
	Threshold     float64
	ScopeID       *string // nil searches every scope
	RequireActive bool
}

// Validate checks the limit and threshold bounds.
func (q Query) Validate() error {
	if len(q.Vector) == 0 {
		return fmt.Errorf("query vector is required")
	}
	if q.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1]")
	}
	return nil
}
