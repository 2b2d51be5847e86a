package domain

// QueryResult is one ranked similarity-search hit. Its lifetime is the
// query call.
type QueryResult struct {
	// Chunk is the matched chunk with its ordinal index.
	Chunk Chunk

	// Similarity is the cosine similarity score, roughly in [0, 1].
	Similarity float64

	// Metadata is the document's metadata reconstituted from storage and
	// re-validated against the schema.
	Metadata Metadata

	// Additional carries optional post-resolver enrichment.
	Additional map[string]any
}

// SearchOptions bound a similarity search.
type SearchOptions struct {
	// Limit caps the number of returned results. Zero means DefaultSearchLimit.
	Limit int

	// SimilarityThreshold, when positive, filters out hits below it.
	SimilarityThreshold float64
}

// DefaultSearchLimit is the result cap applied when none is given.
const DefaultSearchLimit = 10
