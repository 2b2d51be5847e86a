package services

import (
	"context"
	"strings"
	"sync"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// --- Mock implementations shared by the service tests ---

// mockProvider implements driven.EmbeddingProvider.
type mockProvider struct {
	mu       sync.Mutex
	name     string
	model    string
	dims     int
	err      error
	calls    int
	batches  [][]string
	short    bool // return one embedding too few
}

func newMockProvider() *mockProvider {
	return &mockProvider{name: "openai", model: "text-embedding-3-small", dims: 1536}
}

func (m *mockProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, domain.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.err != nil {
		return nil, domain.Usage{}, m.err
	}
	n := len(texts)
	if m.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, m.dims)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, domain.Usage{PromptTokens: 3, TotalTokens: 3}, nil
}

func (m *mockProvider) Name() string  { return m.name }
func (m *mockProvider) Model() string { return m.model }
func (m *mockProvider) Close() error  { return nil }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLoader implements driven.DocumentLoader over an in-memory corpus.
type mockLoader struct {
	mu        sync.Mutex
	docs      []domain.Metadata // enumeration order
	contents  map[string]string // path -> content; absent means vanished
	streamErr error
	loadErr   error
	loads     int
}

func (m *mockLoader) LoadMetadata(_ context.Context) (<-chan domain.Metadata, <-chan error) {
	metaCh := make(chan domain.Metadata)
	errCh := make(chan error, 1)
	go func() {
		defer close(metaCh)
		defer close(errCh)
		for _, md := range m.docs {
			metaCh <- md
		}
		if m.streamErr != nil {
			errCh <- m.streamErr
		}
	}()
	return metaCh, errCh
}

func (m *mockLoader) LoadDocument(_ context.Context, md domain.Metadata) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	path, _ := md["path"].(string)
	content, ok := m.contents[path]
	if !ok {
		return nil, nil
	}
	return &domain.Document{Content: content, Metadata: md}, nil
}

// mockStore implements driven.ChunkStore in memory.
type mockStore struct {
	mu          sync.Mutex
	rows        map[string][]domain.ChunkWithEmbedding
	meta        map[string]domain.Metadata
	version     map[string]string
	insertErrs  []error // consumed one per Insert call
	versionsErr error
	deleteErr   error
	inserts     int
	deleted     [][]string
	hits        []domain.QueryResult
	searchErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		rows:    make(map[string][]domain.ChunkWithEmbedding),
		meta:    make(map[string]domain.Metadata),
		version: make(map[string]string),
	}
}

func (m *mockStore) Insert(_ context.Context, key string, chunks []domain.ChunkWithEmbedding, md domain.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	m.rows[key] = append([]domain.ChunkWithEmbedding(nil), chunks...)
	m.meta[key] = md
	if v, ok := md["version"].(string); ok {
		m.version[key] = v
	}
	return nil
}

func (m *mockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
	delete(m.version, key)
	return nil
}

func (m *mockStore) DeleteBatch(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, append([]string(nil), keys...))
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, key := range keys {
		delete(m.rows, key)
		delete(m.version, key)
	}
	return nil
}

func (m *mockStore) DocumentVersions(_ context.Context) ([]domain.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versionsErr != nil {
		return nil, m.versionsErr
	}
	out := make([]domain.DocumentVersion, 0, len(m.version))
	for key, v := range m.version {
		out = append(out, domain.DocumentVersion{DocumentKey: key, Version: v})
	}
	return out, nil
}

func (m *mockStore) SearchSimilar(_ context.Context, _ []float32, _ map[string]any, limit int, threshold float64) ([]domain.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	out := make([]domain.QueryResult, 0, len(m.hits))
	for _, hit := range m.hits {
		if threshold > 0 && hit.Similarity < threshold {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func (m *mockStore) storedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.rows))
	for key := range m.rows {
		keys = append(keys, key)
	}
	return keys
}

func (m *mockStore) storedContent(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parts []string
	for _, c := range m.rows[key] {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n")
}
