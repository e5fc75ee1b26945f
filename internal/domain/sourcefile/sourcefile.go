// Package sourcefile holds the lifecycle record of one uploaded document.
package sourcefile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

var hashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidContentHash reports whether s is a lowercase hex sha256 digest.
func ValidContentHash(s string) bool { return hashRegex.MatchString(s) }

// MaxDisplayNameLength is the maximum display name length in characters.
const MaxDisplayNameLength = 512

// SourceFile is the source file aggregate. Status changes go through
// Complete and Fail, which enforce the forward-only state machine.
type SourceFile struct {
	id            int64
	displayName   string
	contentHash   string
	status        domain.Status
	ownerID       string
	active        bool
	scopeID       string
	failureKind   domain.FailureKind
	failureReason string
	passageCount  int
	createdAt     time.Time
	updatedAt     time.Time
}

// New validates and creates a Processing, active source file with no id.
// The id is assigned by storage.
func New(displayName, contentHash, ownerID, scopeID string, now time.Time) (SourceFile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return SourceFile{}, fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return SourceFile{}, fmt.Errorf("display name too long (max %d)", MaxDisplayNameLength)
	}
	if !hashRegex.MatchString(contentHash) {
		return SourceFile{}, fmt.Errorf("content hash must be 64 lowercase hex characters")
	}

	return SourceFile{
		displayName: displayName,
		contentHash: contentHash,
		status:      domain.StatusProcessing,
		ownerID:     ownerID,
		active:      true,
		scopeID:     scopeID,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct creates a SourceFile without validation (storage hydration).
func Reconstruct(
	id int64, displayName, contentHash string, status domain.Status,
	ownerID string, active bool, scopeID string,
	failureKind domain.FailureKind, failureReason string, passageCount int,
	createdAt, updatedAt time.Time,
) SourceFile {
	return SourceFile{
		id: id, displayName: displayName, contentHash: contentHash, status: status,
		ownerID: ownerID, active: active, scopeID: scopeID,
		failureKind: failureKind, failureReason: failureReason, passageCount: passageCount,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the storage identifier, zero before insertion.
func (f *SourceFile) ID() int64 { return f.id }

// DisplayName returns the original file name.
func (f *SourceFile) DisplayName() string { return f.displayName }

// ContentHash returns the hex sha256 of the uploaded bytes.
func (f *SourceFile) ContentHash() string { return f.contentHash }

// Status returns the lifecycle status.
func (f *SourceFile) Status() domain.Status { return f.status }

// OwnerID returns the uploader identity.
func (f *SourceFile) OwnerID() string { return f.ownerID }

// Active reports whether the file's passages are searchable.
func (f *SourceFile) Active() bool { return f.active }

// ScopeID returns the tenant partition, empty when unscoped.
func (f *SourceFile) ScopeID() string { return f.scopeID }

// FailureKind returns why the file failed, empty otherwise.
func (f *SourceFile) FailureKind() domain.FailureKind { return f.failureKind }

// FailureReason returns the error text recorded on failure.
func (f *SourceFile) FailureReason() string { return f.failureReason }

// PassageCount returns the number of persisted passages.
func (f *SourceFile) PassageCount() int { return f.passageCount }

// CreatedAt returns the acceptance time.
func (f *SourceFile) CreatedAt() time.Time { return f.createdAt }

// UpdatedAt returns the last modification time.
func (f *SourceFile) UpdatedAt() time.Time { return f.updatedAt }

// WithID returns a copy carrying the storage id.
func (f SourceFile) WithID(id int64) SourceFile {
	f.id = id
	return f
}

// Complete returns the Completed copy of f.
func (f SourceFile) Complete(passageCount int, now time.Time) (SourceFile, error) {
	if err := f.transition(domain.StatusCompleted); err != nil {
		return SourceFile{}, err
	}
	f.status = domain.StatusCompleted
	f.passageCount = passageCount
	f.updatedAt = now
	return f, nil
}

// Fail returns the Failed copy of f. The passage count is reset to zero.
func (f SourceFile) Fail(kind domain.FailureKind, reason string, now time.Time) (SourceFile, error) {
	if err := f.transition(domain.StatusFailed); err != nil {
		return SourceFile{}, err
	}
	if kind == domain.FailureNone {
		kind = domain.FailureInterrupted
	}
	f.status = domain.StatusFailed
	f.failureKind = kind
	f.failureReason = reason
	f.passageCount = 0
	f.updatedAt = now
	return f, nil
}

// SetActive returns a copy with the active flag changed.
func (f SourceFile) SetActive(active bool, now time.Time) SourceFile {
	f.active = active
	f.updatedAt = now
	return f
}

func (f *SourceFile) transition(next domain.Status) error {
	if !f.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, f.status, next)
	}
	return nil
}
