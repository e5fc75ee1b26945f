package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeUnknownScope  = -32001 // Scope name is not configured
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data any) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

type hitJSON struct {
	PassageID    int64   `json:"passage_id"`
	SourceFileID int64   `json:"source_file_id"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

type searchJSON struct {
	Items []hitJSON `json:"items"`
	Total int       `json:"total"`
}

type statusJSON struct {
	ContentHash   string              `json:"content_hash"`
	Exists        bool                `json:"exists"`
	Status        domain.LookupStatus `json:"status"`
	SourceFileID  *int64              `json:"source_file_id,omitempty"`
	FailureKind   domain.FailureKind  `json:"failure_kind,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	PassageCount  int                 `json:"passage_count"`
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]any{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	limit := req.GetInt("limit", s.defaults.Limit)
	threshold := req.GetFloat("threshold", s.defaults.Threshold)
	scope := req.GetString("scope", "")

	searchReq, err := request.New(query, limit, threshold, scope)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	hits, err := s.search.Search(ctx, searchReq)
	if err != nil {
		return s.toolError(ToolSearchDocuments, err)
	}

	resp := searchJSON{Items: make([]hitJSON, len(hits)), Total: len(hits)}
	for i := range hits {
		h := &hits[i]
		resp.Items[i] = hitJSON{
			PassageID:    h.PassageID(),
			SourceFileID: h.SourceFileID(),
			Content:      h.Content(),
			Similarity:   h.Similarity(),
		}
	}
	return jsonResult(resp)
}

// handleFileStatus handles the file_status tool invocation
func (s *Server) handleFileStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := req.RequireString("content_hash")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "content_hash parameter is required", map[string]any{
			"param":  "content_hash",
			"reason": "missing or not a string",
		})
	}

	rep, err := s.status.Status(ctx, hash)
	if err != nil {
		return s.toolError(ToolFileStatus, err)
	}

	resp := statusJSON{
		ContentHash:   hash,
		Exists:        rep.Exists,
		Status:        rep.Status,
		FailureKind:   rep.FailureKind,
		FailureReason: rep.FailureReason,
		PassageCount:  rep.PassageCount,
	}
	if rep.Exists {
		id := rep.SourceFileID
		resp.SourceFileID = &id
	}
	return jsonResult(resp)
}

// toolError maps a usecase error. Caller mistakes become protocol errors;
// provider failures are in-band tool errors.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, domain.ErrUnknownScope):
		return nil, newMCPError(ErrorCodeUnknownScope, domain.ErrUnknownScope.Error(), nil)
	case errors.Is(err, domain.ErrRateLimited):
		return mcp.NewToolResultError(domain.ErrRateLimited.Error()), nil
	case errors.Is(err, domain.ErrEmbeddingGateway):
		return mcp.NewToolResultError(domain.ErrEmbeddingGateway.Error()), nil
	default:
		s.logger.Error("mcp tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "internal error", nil)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "encode result", nil)
	}
	return mcp.NewToolResultText(string(b)), nil
}
