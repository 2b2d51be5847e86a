package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query     string  `json:"query" jsonschema:"the search query to find relevant chunks"`
	Limit     int     `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"minimum similarity between 0 and 1 (default none)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IngestStatusInput is the input schema for the ingest_status tool.
type IngestStatusInput struct{}

// IngestStatusOutput is the output schema for the ingest_status tool.
type IngestStatusOutput struct {
	Documents []DocumentVersionOutput `json:"documents"`
	Count     int                     `json:"count"`
}

// DocumentVersionOutput is one indexed document and its stored version.
type DocumentVersionOutput struct {
	DocumentKey string `json:"document_key"`
	Version     string `json:"version"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct{}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	TotalDocuments      int      `json:"total_documents"`
	SuccessfulDocuments int      `json:"successful_documents"`
	FailedDocuments     int      `json:"failed_documents"`
	Errors              []string `json:"errors,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed corpus by semantic similarity",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_status",
		Description: "List the indexed documents and their stored versions",
	}, s.handleIngestStatus)

	if s.ports.Ingestor != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Run a differential ingestion of the configured source",
		}, s.handleIngest)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.SearchOptions{
		Limit:               input.Limit,
		SimilarityThreshold: input.Threshold,
	}

	results, err := s.ports.Searcher.Search(ctx, input.Query, nil, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			Content:    results[i].Chunk.Content,
			ChunkIndex: results[i].Chunk.Index,
			Similarity: results[i].Similarity,
			Metadata:   results[i].Metadata,
		}
	}

	return nil, output, nil
}

// handleIngestStatus handles the ingest_status tool invocation.
func (s *Server) handleIngestStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ IngestStatusInput,
) (*mcp.CallToolResult, IngestStatusOutput, error) {
	versions, err := s.ports.Store.DocumentVersions(ctx)
	if err != nil {
		return nil, IngestStatusOutput{}, err
	}

	output := IngestStatusOutput{
		Documents: make([]DocumentVersionOutput, len(versions)),
		Count:     len(versions),
	}
	for i, dv := range versions {
		output.Documents[i] = DocumentVersionOutput{
			DocumentKey: dv.DocumentKey,
			Version:     dv.Version,
		}
	}

	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	result, err := s.ports.Ingestor.Ingest(ctx)
	if err != nil {
		return nil, IngestOutput{}, err
	}

	output := IngestOutput{
		TotalDocuments:      result.TotalDocuments,
		SuccessfulDocuments: result.SuccessfulDocuments,
		FailedDocuments:     result.FailedDocuments,
	}
	for _, docErr := range result.Errors {
		output.Errors = append(output.Errors,
			docErr.DocumentKey+": "+docErr.Err.Error())
	}

	return nil, output, nil
}
