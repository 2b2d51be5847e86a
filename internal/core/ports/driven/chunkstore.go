package driven

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// ChunkStore is durable, versioned, per-document-key storage of chunk
// content, embedding and metadata. Every operation is implicitly scoped by
// the store's (scope, embedding profile id) configured at construction.
type ChunkStore interface {
	// Insert atomically replaces all rows for documentKey with the given
	// chunks. Metadata is validated against the store's schema first; a
	// failure lists every violated field. An empty chunk list is a no-op.
	// A concurrent reader never observes a partial mix of old and new
	// chunks for the same document.
	Insert(ctx context.Context, documentKey string, chunks []domain.ChunkWithEmbedding, metadata domain.Metadata) error

	// Delete removes all rows for one document key. Idempotent.
	Delete(ctx context.Context, documentKey string) error

	// DeleteBatch removes rows for many document keys in one statement.
	// No-op on empty input.
	DeleteBatch(ctx context.Context, documentKeys []string) error

	// DocumentVersions returns the distinct (documentKey, version) pairs
	// in scope.
	DocumentVersions(ctx context.Context) ([]domain.DocumentVersion, error)

	// SearchSimilar returns up to limit chunks ranked by descending cosine
	// similarity to the query embedding, restricted to rows matching every
	// filter (logical metadata field -> required value) and, when
	// threshold > 0, to hits at or above it. Row metadata is reconstructed
	// and re-validated against the schema before being returned.
	SearchSimilar(ctx context.Context, embedding []float32, filters map[string]any, limit int, threshold float64) ([]domain.QueryResult, error)

	// Close releases the store's resources.
	Close() error
}
