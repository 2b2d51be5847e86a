package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

func testSchema() domain.Schema {
	return domain.Schema{
		"path":      {Type: domain.FieldTypeString, Required: true},
		"version":   {Type: domain.FieldTypeString, Required: true},
		"lineCount": {Type: domain.FieldTypeInt},
	}
}

func testStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "chunks.db")
	}
	if cfg.Schema == nil {
		cfg.Schema = testSchema()
	}
	if cfg.VersionField == "" {
		cfg.VersionField = "version"
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func meta(path, version string) domain.Metadata {
	return domain.Metadata{"path": path, "version": version, "lineCount": 3}
}

func chunksWith(embeddings ...[]float32) []domain.ChunkWithEmbedding {
	out := make([]domain.ChunkWithEmbedding, len(embeddings))
	for i, e := range embeddings {
		out[i] = domain.ChunkWithEmbedding{
			Chunk:     domain.Chunk{Content: "chunk", Index: i},
			Embedding: e,
		}
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("requires a version field", func(t *testing.T) {
		_, err := New(Config{Path: filepath.Join(t.TempDir(), "c.db"), Schema: testSchema()})
		require.Error(t, err)
		assert.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	})

	t.Run("version field must exist and be a string", func(t *testing.T) {
		_, err := New(Config{
			Path: filepath.Join(t.TempDir(), "c.db"), Schema: testSchema(),
			VersionField: "revision",
		})
		require.Error(t, err)

		_, err = New(Config{
			Path: filepath.Join(t.TempDir(), "c.db"), Schema: testSchema(),
			VersionField: "lineCount",
		})
		require.Error(t, err)
	})
}

func TestInsertAndSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip preserves content and metadata", func(t *testing.T) {
		s := testStore(t, Config{})
		err := s.Insert(ctx, "docs/a.md", chunksWith([]float32{1, 0}), meta("docs/a.md", "v1"))
		require.NoError(t, err)

		results, err := s.SearchSimilar(ctx, []float32{1, 0}, nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "chunk", results[0].Chunk.Content)
		assert.Equal(t, 0, results[0].Chunk.Index)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
		assert.Equal(t, "docs/a.md", results[0].Metadata["path"])
		assert.Equal(t, "v1", results[0].Metadata["version"])
		assert.Equal(t, 3, results[0].Metadata["lineCount"])
	})

	t.Run("absent optional metadata field round-trips", func(t *testing.T) {
		s := testStore(t, Config{})
		md := domain.Metadata{"path": "docs/a.md", "version": "v1", "lineCount": nil}
		require.NoError(t, s.Insert(ctx, "docs/a.md", chunksWith([]float32{1, 0}), md))

		results, err := s.SearchSimilar(ctx, []float32{1, 0}, nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NotContains(t, results[0].Metadata, "lineCount")
	})

	t.Run("results come back in similarity order", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a",
			chunksWith([]float32{1, 0}, []float32{0, 1}, []float32{1, 1}), meta("a", "v1")))

		results, err := s.SearchSimilar(ctx, []float32{1, 0}, nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, 0, results[0].Chunk.Index)
		assert.Equal(t, 2, results[1].Chunk.Index)
		assert.Equal(t, 1, results[2].Chunk.Index)
	})

	t.Run("limit and threshold apply", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a",
			chunksWith([]float32{1, 0}, []float32{1, 0.1}, []float32{0, 1}), meta("a", "v1")))

		results, err := s.SearchSimilar(ctx, []float32{1, 0}, nil, 2, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = s.SearchSimilar(ctx, []float32{1, 0}, nil, 10, 0.9)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Similarity, 0.9)
		}
	})

	t.Run("reinsert replaces previous chunks atomically", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a",
			chunksWith([]float32{1, 0}, []float32{0, 1}), meta("a", "v1")))
		require.NoError(t, s.Insert(ctx, "a",
			chunksWith([]float32{1, 0}), meta("a", "v2")))

		results, err := s.SearchSimilar(ctx, []float32{1, 0}, nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "v2", results[0].Metadata["version"])

		versions, err := s.DocumentVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, domain.DocumentVersion{DocumentKey: "a", Version: "v2"}, versions[0])
	})

	t.Run("metadata violating the schema is rejected", func(t *testing.T) {
		s := testStore(t, Config{})
		err := s.Insert(ctx, "a", chunksWith([]float32{1}), domain.Metadata{"version": "v1"})
		require.Error(t, err)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "path")
	})

	t.Run("empty chunk list is a no-op", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a", nil, meta("a", "v1")))

		versions, err := s.DocumentVersions(ctx)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()

	t.Run("filters restrict by metadata equality", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a", chunksWith([]float32{1, 0}), meta("docs/a.md", "v1")))
		require.NoError(t, s.Insert(ctx, "b", chunksWith([]float32{1, 0}), meta("docs/b.md", "v1")))

		results, err := s.SearchSimilar(ctx, []float32{1, 0},
			map[string]any{"path": "docs/b.md"}, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "docs/b.md", results[0].Metadata["path"])
	})

	t.Run("int filters match normalised metadata", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a", chunksWith([]float32{1}), meta("a", "v1")))

		results, err := s.SearchSimilar(ctx, []float32{1},
			map[string]any{"lineCount": 3}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, results, 1)

		results, err = s.SearchSimilar(ctx, []float32{1},
			map[string]any{"lineCount": 4}, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown filter field fails", func(t *testing.T) {
		s := testStore(t, Config{})
		_, err := s.SearchSimilar(ctx, []float32{1}, map[string]any{"owner": "x"}, 10, 0)
		require.Error(t, err)
		assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	})

	t.Run("non-positive limit fails", func(t *testing.T) {
		s := testStore(t, Config{})
		_, err := s.SearchSimilar(ctx, []float32{1}, nil, 0, 0)
		require.Error(t, err)
		assert.Equal(t, domain.CodeOperation, domain.CodeOf(err))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("delete removes one document and is idempotent", func(t *testing.T) {
		s := testStore(t, Config{})
		require.NoError(t, s.Insert(ctx, "a", chunksWith([]float32{1}), meta("a", "v1")))
		require.NoError(t, s.Insert(ctx, "b", chunksWith([]float32{1}), meta("b", "v1")))

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))

		versions, err := s.DocumentVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, "b", versions[0].DocumentKey)
	})

	t.Run("delete batch removes several documents", func(t *testing.T) {
		s := testStore(t, Config{})
		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, s.Insert(ctx, key, chunksWith([]float32{1}), meta(key, "v1")))
		}

		require.NoError(t, s.DeleteBatch(ctx, []string{"a", "c"}))
		require.NoError(t, s.DeleteBatch(ctx, nil))

		versions, err := s.DocumentVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, "b", versions[0].DocumentKey)
	})
}

func TestScopeIsolation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	t.Run("different scopes do not see each other", func(t *testing.T) {
		acme := testStore(t, Config{Path: path, Scope: domain.Scope{"tenant": "acme"}})
		globex := testStore(t, Config{Path: path, Scope: domain.Scope{"tenant": "globex"}})

		require.NoError(t, acme.Insert(ctx, "a", chunksWith([]float32{1}), meta("a", "v1")))

		versions, err := globex.DocumentVersions(ctx)
		require.NoError(t, err)
		assert.Empty(t, versions)

		require.NoError(t, globex.Delete(ctx, "a"))
		versions, err = acme.DocumentVersions(ctx)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("different profiles do not see each other", func(t *testing.T) {
		small := testStore(t, Config{Path: path, ProfileID: 1})
		large := testStore(t, Config{Path: path, ProfileID: 2})

		require.NoError(t, small.Insert(ctx, "a", chunksWith([]float32{1}), meta("a", "v1")))

		results, err := large.SearchSimilar(ctx, []float32{1}, nil, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, math.Sqrt2/2, cosineSimilarity([]float32{1, 0}, []float32{1, 1}), 1e-6)

	// Degenerate inputs.
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestEmbeddingEncoding(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, float32(math.Pi)}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	assert.Equal(t, in, out)

	assert.Empty(t, float32SliceToBytes(nil))
	assert.Empty(t, bytesToFloat32Slice(nil))
}
