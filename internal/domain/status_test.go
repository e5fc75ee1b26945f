package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"processing", "completed", "failed"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("received"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestLookupOf(t *testing.T) {
	if LookupOf(StatusCompleted) != LookupCompleted {
		t.Error("completed should map to completed")
	}
	if LookupOf(Status("")) != LookupNotFound {
		t.Error("empty status should map to not_found")
	}
}

func TestFailureKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureNone},
		{"extraction", fmt.Errorf("pdf: %w", ErrExtraction), FailureExtraction},
		{"unsupported", fmt.Errorf("x: %w", ErrUnsupportedFormat), FailureExtraction},
		{"empty", ErrEmptyContent, FailureEmptyContent},
		{"embedding", fmt.Errorf("batch: %w", ErrEmbeddingGateway), FailureEmbedding},
		{"rate limit", ErrRateLimited, FailureEmbedding},
		{"persistence", fmt.Errorf("insert: %w", ErrPersistence), FailurePersistence},
		{"cancelled embedding", fmt.Errorf("%w: %w", ErrEmbeddingGateway, context.Canceled), FailureInterrupted},
		{"other", errors.New("boom"), FailureInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureKindOf(tt.err); got != tt.want {
				t.Errorf("FailureKindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDuplicateContentError_Unwrap(t *testing.T) {
	err := NewDuplicateContent("abc", 7, StatusCompleted)

	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatal("expected errors.Is ErrDuplicateContent")
	}
	var dup *DuplicateContentError
	if !errors.As(err, &dup) {
		t.Fatal("expected errors.As DuplicateContentError")
	}
	if dup.SourceFileID != 7 {
		t.Errorf("expected id 7, got %d", dup.SourceFileID)
	}
}
