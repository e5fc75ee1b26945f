package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
)

// Tool names.
const (
	ToolSearchDocuments = "search_documents"
	ToolFileStatus      = "file_status"
)

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchDocuments,
		Description: "Semantic search over ingested documents. Returns the passages most similar to the query, best first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language query",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of passages to return",
					"default":     request.DefaultLimit,
					"minimum":     1,
					"maximum":     request.MaxLimit,
				},
				"threshold": map[string]any{
					"type":        "number",
					"description": "Only passages with similarity strictly above this value are returned",
					"minimum":     0,
					"maximum":     1,
				},
				"scope": map[string]any{
					"type":        "string",
					"description": "Restrict the search to one scope; omit to search everything",
				},
			},
			Required: []string{"query"},
		},
	}
}

// fileStatusTool returns the tool definition for file_status
func fileStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolFileStatus,
		Description: "Report the ingestion status of a document by its SHA-256 content hash",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"content_hash": map[string]any{
					"type":        "string",
					"description": "Lowercase hex SHA-256 of the document bytes",
					"pattern":     "^[0-9a-fA-F]{64}$",
				},
			},
			Required: []string{"content_hash"},
		},
	}
}
