package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/corpora-dev/corpora/internal/adapters/driven/config/file"
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

// mockStore implements the slice of driven.ChunkStore the commands touch.
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

// setupTestServices installs a factory returning mock services and points
// the config path at a file that does not exist, so defaults are used.
// The returned cleanup restores the previous state.
func setupTestServices(svcs *Services) func() {
	oldFactory := newServices
	oldPath := cfgPath

	cfgPath = filepath.Join(os.TempDir(), "corpora-cli-test-missing.toml")
	newServices = func(context.Context, *file.Config) (*Services, error) {
		return svcs, nil
	}

	return func() {
		newServices = oldFactory
		cfgPath = oldPath
	}
}

func defaultTestServices() *Services {
	return &Services{
		Searcher: &mockSearcher{
			results: []domain.QueryResult{
				{
					Chunk:      domain.Chunk{Content: "func main() {}", Index: 0},
					Similarity: 0.91,
					Metadata:   domain.Metadata{"path": "cmd/main.go", "version": "abc123"},
				},
			},
		},
		Ingestor: &mockIngestor{
			result: &domain.IngestResult{TotalDocuments: 3, SuccessfulDocuments: 3},
		},
		Store: &mockStore{
			versions: []domain.DocumentVersion{
				{DocumentKey: "docs/b.md", Version: "v2"},
				{DocumentKey: "docs/a.md", Version: "v1"},
			},
		},
	}
}
