package domain

import "fmt"

// Status is the lifecycle state of a source file.
type Status string

const (
	// StatusProcessing is set when an upload is accepted.
	StatusProcessing Status = "processing"
	// StatusCompleted is set once every passage is persisted.
	StatusCompleted Status = "completed"
	// StatusFailed is set on any unrecoverable ingestion error.
	StatusFailed Status = "failed"
)

// ParseStatus converts a stored value back to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal move.
// Only Processing -> {Completed, Failed} is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// LookupStatus is the status reported by a by-hash lookup. It adds not_found
// to the persisted states.
type LookupStatus string

const (
	// LookupNotFound means no source file owns the hash.
	LookupNotFound LookupStatus = "not_found"
	// LookupProcessing mirrors StatusProcessing.
	LookupProcessing LookupStatus = "processing"
	// LookupCompleted mirrors StatusCompleted.
	LookupCompleted LookupStatus = "completed"
	// LookupFailed mirrors StatusFailed.
	LookupFailed LookupStatus = "failed"
)

// LookupOf converts a persisted status to its lookup form.
func LookupOf(s Status) LookupStatus {
	switch s {
	case StatusProcessing:
		return LookupProcessing
	case StatusCompleted:
		return LookupCompleted
	case StatusFailed:
		return LookupFailed
	default:
		return LookupNotFound
	}
}
