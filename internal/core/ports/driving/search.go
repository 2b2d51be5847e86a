package driving

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// Searcher answers similarity queries over ingested chunks.
type Searcher interface {
	// Search embeds the query, derives filters from filterCtx and returns
	// ranked results with their metadata reconstituted.
	Search(ctx context.Context, query string, filterCtx any, opts domain.SearchOptions) ([]domain.QueryResult, error)
}
