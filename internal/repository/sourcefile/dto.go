package sourcefile

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

// Hash field names of a source file record.
const (
	fieldID            = "id"
	fieldDisplayName   = "display_name"
	fieldContentHash   = "content_hash"
	fieldStatus        = "status"
	fieldOwnerID       = "owner_id"
	fieldActive        = "active"
	fieldScopeID       = "scope_id"
	fieldFailureKind   = "failure_kind"
	fieldFailureReason = "failure_reason"
	fieldPassageCount  = "passage_count"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
)

func toFields(f *domsf.SourceFile) map[string]string {
	return map[string]string{
		fieldID:            strconv.FormatInt(f.ID(), 10),
		fieldDisplayName:   f.DisplayName(),
		fieldContentHash:   f.ContentHash(),
		fieldStatus:        string(f.Status()),
		fieldOwnerID:       f.OwnerID(),
		fieldActive:        keyspace.ActiveTag(f.Active()),
		fieldScopeID:       f.ScopeID(),
		fieldFailureKind:   string(f.FailureKind()),
		fieldFailureReason: f.FailureReason(),
		fieldPassageCount:  strconv.Itoa(f.PassageCount()),
		fieldCreatedAt:     f.CreatedAt().UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:     f.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func fromFields(m map[string]string) (domsf.SourceFile, error) {
	id, err := strconv.ParseInt(m[fieldID], 10, 64)
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("parse id: %w", err)
	}
	status, err := domain.ParseStatus(m[fieldStatus])
	if err != nil {
		return domsf.SourceFile{}, err
	}
	kind, err := domain.ParseFailureKind(m[fieldFailureKind])
	if err != nil {
		return domsf.SourceFile{}, err
	}

	count, _ := strconv.Atoi(m[fieldPassageCount])
	createdAt, _ := time.Parse(time.RFC3339Nano, m[fieldCreatedAt])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m[fieldUpdatedAt])

	return domsf.Reconstruct(
		id, m[fieldDisplayName], m[fieldContentHash], status,
		m[fieldOwnerID], m[fieldActive] == "1", m[fieldScopeID],
		kind, m[fieldFailureReason], count,
		createdAt, updatedAt,
	), nil
}
