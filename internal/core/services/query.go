package services

import (
	"context"
	"fmt"

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/core/ports/driving"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.Searcher = (*QueryService)(nil)

// FilterFunc derives equality filters (logical metadata field -> required
// value) from a caller-supplied context value. It must be pure.
type FilterFunc func(filterCtx any) (map[string]any, error)

// ResolverFunc optionally transforms the final result list before return,
// e.g. for enrichment.
type ResolverFunc func(ctx context.Context, results []domain.QueryResult) ([]domain.QueryResult, error)

// QueryService answers similarity queries: it embeds the query text, scopes
// the search with derived filters and returns ranked, metadata-typed results.
type QueryService struct {
	embedder driven.Embedder
	store    driven.ChunkStore
	filters  FilterFunc
	resolver ResolverFunc
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithFilterFunc installs the filter derivation function. Without one,
// searches run unfiltered within the store's scope.
func WithFilterFunc(fn FilterFunc) QueryOption {
	return func(s *QueryService) { s.filters = fn }
}

// WithResolver installs a post-processing resolver.
func WithResolver(fn ResolverFunc) QueryOption {
	return func(s *QueryService) { s.resolver = fn }
}

// NewQueryService creates a query service.
func NewQueryService(embedder driven.Embedder, store driven.ChunkStore, opts ...QueryOption) (*QueryService, error) {
	if embedder == nil || store == nil {
		return nil, domain.E(domain.CodeConfiguration, "query.new", nil,
			"reason", "embedder and store are required")
	}
	s := &QueryService{embedder: embedder, store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search embeds query, derives filters from filterCtx and returns up to
// opts.Limit results ordered by descending similarity.
func (s *QueryService) Search(ctx context.Context, query string, filterCtx any, opts domain.SearchOptions) ([]domain.QueryResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filters map[string]any
	if s.filters != nil {
		filters, err = s.filters(filterCtx)
		if err != nil {
			return nil, domain.E(domain.CodeOperation, "query.filters", err)
		}
	}

	logger.Debug("Searching: limit=%d threshold=%.3f filters=%d", limit, opts.SimilarityThreshold, len(filters))
	results, err := s.store.SearchSimilar(ctx, embedding, filters, limit, opts.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if s.resolver != nil {
		results, err = s.resolver(ctx, results)
		if err != nil {
			return nil, fmt.Errorf("resolve results: %w", err)
		}
	}
	return results, nil
}
