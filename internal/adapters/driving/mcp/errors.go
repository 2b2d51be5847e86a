// Package mcp provides an MCP (Model Context Protocol) server adapter for
// corpora. It lets AI assistants search the indexed corpus and inspect
// ingestion state.
package mcp

import "errors"

// ErrMissingSearcher is returned when the searcher is not provided.
var ErrMissingSearcher = errors.New("mcp: searcher is required")

// ErrMissingStore is returned when the chunk store is not provided.
var ErrMissingStore = errors.New("mcp: chunk store is required")
