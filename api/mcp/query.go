package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/utils"
)

var (
	queryToolName    = "query_document"
	queryDescription = "Retrieve the most relevant passages from a previously indexed document session. Returns the passages and a combined context string for answering questions."

	listToolName    = "list_documents"
	listDescription = "List the indexed document sessions available for querying, with their session ids and chunk counts."
)

// QueryInput represents the input arguments for the query tool.
type QueryInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id of the indexed document to query"`
	Query     string `json:"query" jsonschema:"the question or search text"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"number of passages to return (default: 3)"`
}

// QueryOutput represents the output of the query tool.
type QueryOutput struct {
	Context        string   `json:"context"`
	RelevantChunks []string `json:"relevant_chunks"`
	Filename       string   `json:"filename"`
}

// ListInput represents the (empty) input of the list tool.
type ListInput struct{}

// DocumentInfo is one listed document session.
type DocumentInfo struct {
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	ChunksCount int    `json:"chunks_count"`
}

// ListOutput represents the output of the list tool.
type ListOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// handleQueryDocument processes a document query request.
func (s *Server) handleQueryDocument(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP query request",
		zap.String("session_id", input.SessionID),
		zap.String("query", utils.Truncate(input.Query, 120)),
		zap.Int("topK", input.TopK),
	)

	result, err := s.config.Service.Query(ctx, input.SessionID, input.Query, input.TopK)
	if err != nil {
		logger.Error("failed to query session", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to query session: %v", err)), QueryOutput{}, nil
	}

	output := QueryOutput{
		Context:        result.Context,
		RelevantChunks: result.RelevantChunks,
		Filename:       result.Filename,
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal query output", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), QueryOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// handleListDocuments lists the indexed document sessions.
func (s *Server) handleListDocuments(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
	logger := s.config.Logger

	infos, err := s.config.Service.ListSessions()
	if err != nil {
		logger.Error("failed to list sessions", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to list sessions: %v", err)), ListOutput{}, nil
	}

	documents := make([]DocumentInfo, len(infos))
	for i, info := range infos {
		documents[i] = DocumentInfo{
			SessionID:   info.SessionID,
			Filename:    info.Filename,
			ChunksCount: info.ChunksCount,
		}
	}

	output := ListOutput{
		Documents: documents,
		Count:     len(documents),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal list output", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), ListOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
