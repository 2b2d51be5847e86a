package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure Embedder implements the port.
var _ driven.Embedder = (*Embedder)(nil)

// Embedder wraps an embedding provider under one embedding profile.
// Provider failures are translated to typed embedding errors carrying the
// operation name and model id; successes are reported to an optional
// completion callback whose own failures never reach the caller.
type Embedder struct {
	provider   driven.EmbeddingProvider
	profile    domain.EmbeddingProfile
	onComplete func(domain.EmbeddingEvent)
	limiter    *rate.Limiter
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithCompletionCallback registers a callback invoked after every
// successful provider call. Callback panics are recovered and logged.
func WithCompletionCallback(fn func(domain.EmbeddingEvent)) EmbedderOption {
	return func(e *Embedder) { e.onComplete = fn }
}

// WithRateLimit throttles provider calls to n requests per second.
func WithRateLimit(n float64) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// NewEmbedder creates an embedder for profileID, resolved against registry.
// An unknown profile id or a provider/model mismatch fails configuration
// validation before any network call.
func NewEmbedder(
	registry *domain.ProfileRegistry,
	profileID int,
	provider driven.EmbeddingProvider,
	opts ...EmbedderOption,
) (*Embedder, error) {
	profile, err := registry.Get(profileID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, domain.E(domain.CodeConfiguration, "embedder.new", nil,
			"reason", "no embedding provider supplied")
	}
	if provider.Name() != profile.Provider || provider.Model() != profile.Model {
		return nil, domain.E(domain.CodeConfiguration, "embedder.new",
			fmt.Errorf("provider serves %s/%s, profile %d expects %s/%s",
				provider.Name(), provider.Model(), profileID, profile.Provider, profile.Model))
	}

	e := &Embedder{provider: provider, profile: profile}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed generates a vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embed(ctx, "embed", []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedMany generates one vector per input, order-preserving. The result has
// the same length as the input for any batch size including 0 and 1.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, "embedMany", texts)
}

// Profile returns the embedding profile this embedder serves.
func (e *Embedder) Profile() domain.EmbeddingProfile {
	return e.profile
}

func (e *Embedder) embed(ctx context.Context, operation string, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, domain.E(domain.CodeEmbedding, "embedder."+operation, err,
				"model", e.profile.Model)
		}
	}

	start := time.Now()
	embeddings, usage, err := e.provider.EmbedBatch(ctx, texts)
	end := time.Now()
	if err != nil {
		return nil, domain.E(domain.CodeEmbedding, "embedder."+operation, err,
			"model", e.profile.Model, "provider", e.profile.Provider)
	}
	if len(embeddings) != len(texts) {
		return nil, domain.E(domain.CodeOperation, "embedder."+operation,
			fmt.Errorf("provider returned %d embeddings for %d texts", len(embeddings), len(texts)),
			"model", e.profile.Model)
	}

	e.notify(domain.EmbeddingEvent{
		Texts:      texts,
		Embeddings: embeddings,
		Model:      e.profile.Model,
		Provider:   e.profile.Provider,
		Dimensions: e.profile.Dimensions,
		Usage:      usage,
		Operation:  operation,
		StartTime:  start,
		EndTime:    end,
	})

	return embeddings, nil
}

// notify delivers the completion event. A panicking callback is logged and
// swallowed so telemetry can never break embedding.
func (e *Embedder) notify(event domain.EmbeddingEvent) {
	if e.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("embedding completion callback panicked: %v", r)
		}
	}()
	e.onComplete(event)
}
