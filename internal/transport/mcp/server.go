// Package mcp exposes search and status lookups as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/version"
)

// ServerName is the MCP server name
const ServerName = "ragdex"

// Searcher runs semantic search.
type Searcher interface {
	Search(ctx context.Context, req request.Request) ([]result.Hit, error)
}

// StatusLookup answers by-hash ingestion status queries.
type StatusLookup interface {
	Status(ctx context.Context, contentHash string) (ingest.StatusReport, error)
}

// Defaults applied to search_documents when the caller omits them.
type Defaults struct {
	Limit     int
	Threshold float64
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	search   Searcher
	status   StatusLookup
	defaults Defaults
	logger   *zap.Logger
}

// NewServer creates an MCP server with both tools registered.
func NewServer(search Searcher, status StatusLookup, defaults Defaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Limit <= 0 {
		defaults.Limit = request.DefaultLimit
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version.Version, server.WithToolCapabilities(false)),
		search:   search,
		status:   status,
		defaults: defaults,
		logger:   logger,
	}
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(fileStatusTool(), s.handleFileStatus)
	return s
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// HandleMessage processes one raw JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) any {
	return s.mcp.HandleMessage(ctx, msg)
}
