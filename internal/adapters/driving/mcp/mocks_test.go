package mcp

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// mockSearcher implements driving.Searcher for tests.
type mockSearcher struct {
	results   []domain.QueryResult
	err       error
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockSearcher) Search(_ context.Context, query string, _ any, opts domain.SearchOptions) ([]domain.QueryResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockIngestor implements driving.Ingestor for tests.
type mockIngestor struct {
	result *domain.IngestResult
	err    error
	calls  int
}

func (m *mockIngestor) Ingest(context.Context) (*domain.IngestResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockStore implements the slice of driven.ChunkStore the server touches.
type mockStore struct {
	versions []domain.DocumentVersion
	err      error
}

func (m *mockStore) Insert(context.Context, string, []domain.ChunkWithEmbedding, domain.Metadata) error {
	return nil
}

func (m *mockStore) Delete(context.Context, string) error {
	return nil
}

func (m *mockStore) DeleteBatch(context.Context, []string) error {
	return nil
}

func (m *mockStore) DocumentVersions(context.Context) ([]domain.DocumentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.versions, nil
}

func (m *mockStore) SearchSimilar(context.Context, []float32, map[string]any, int, float64) ([]domain.QueryResult, error) {
	return nil, nil
}

func (m *mockStore) Close() error {
	return nil
}
