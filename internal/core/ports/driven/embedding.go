package driven

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// EmbeddingProvider is the raw text-in/vector-out backend for one embedding
// model. Implementations wrap a provider API call and report nothing beyond
// vectors and usage; classification into domain errors is the embedder
// service's job.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingProvider interface {
	// EmbedBatch generates one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, domain.Usage, error)

	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// Model returns the model identifier being served.
	Model() string

	// Close releases resources.
	Close() error
}

// Embedder converts text into fixed-length vectors under one embedding
// profile. It is the port consumed by the ingest pipeline and query service.
type Embedder interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany generates one vector per input, order-preserving, with the
	// same length as the input for any batch size including 0 and 1.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Profile returns the embedding profile this embedder serves.
	Profile() domain.EmbeddingProfile
}
