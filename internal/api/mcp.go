package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/verasoft/docchat/internal/retrieval"
	"github.com/verasoft/docchat/internal/storage"
)

// MCPSearcher abstracts keyword search over the published index.
type MCPSearcher interface {
	Search(query string) ([]retrieval.ScoredChunk, error)
}

// MCPAnswerer runs a full retrieval-augmented chat turn.
type MCPAnswerer interface {
	Answer(ctx context.Context, message, sessionID string) (reply, sid string, err error)
}

// MCPDocuments lists ingested documents.
type MCPDocuments interface {
	List() ([]storage.Document, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Searcher  MCPSearcher
	Documents MCPDocuments
	Answerer  MCPAnswerer // optional; if nil, the ask tool reports unavailability
}

// NewMCPServer creates an MCP server exposing the document chat tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docchat — keyword search and question answering over ingested documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Search the indexed document chunks by keywords and return scored matches."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List ingested documents with their chunk counts, newest first."),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question answered exclusively from the ingested documents."),
			mcp.WithString("message", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Optional session id to continue a conversation")),
		),
		mcpAsk(deps),
	)

	return s
}

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		hits, err := deps.Searcher.Search(query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) > limit {
			hits = hits[:limit]
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		type hitResult struct {
			ID    string  `json:"id"`
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		}
		results := make([]hitResult, len(hits))
		for i, h := range hits {
			results[i] = hitResult{ID: h.Chunk.ID, Text: h.Chunk.Text, Score: h.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Documents.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list documents: %v", err)), nil
		}
		if docs == nil {
			docs = []storage.Document{}
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Answerer == nil {
			return mcpError("chat not available: no completion backend configured"), nil
		}

		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		reply, sid, err := deps.Answerer.Answer(ctx, message, sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"reply": reply, "sessionId": sid})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
