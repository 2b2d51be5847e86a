package mcp

import (
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/core/ports/driving"
)

// Ports aggregates the port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Searcher provides similarity search.
	Searcher driving.Searcher

	// Ingestor runs differential ingestion.
	Ingestor driving.Ingestor

	// Store reports the indexed document versions.
	Store driven.ChunkStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Searcher == nil {
		return ErrMissingSearcher
	}
	if p.Store == nil {
		return ErrMissingStore
	}
	// Ingestor is optional; without it the ingest tool is read-only.
	return nil
}
