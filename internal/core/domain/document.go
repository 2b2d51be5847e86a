package domain

// Document is a unit of ingestible content with its caller-defined metadata.
// It is the canonical representation handed to the ingest pipeline by a
// document loader.
type Document struct {
	// Content is the full text content to be chunked and embedded.
	Content string

	// Metadata is the open, schema-validated record carrying provenance
	// (path, owner, repo) plus the key- and version-deriving fields.
	Metadata Metadata
}

// Chunk is one contiguous slice of a document's text, ordinally addressed
// within its document.
type Chunk struct {
	// Content is the text content of this chunk.
	Content string

	// Index is the ordinal position within the document, starting at 0.
	Index int
}

// ChunkWithEmbedding pairs a chunk with its vector representation.
// All embeddings stored in one logical table share the same dimensionality.
type ChunkWithEmbedding struct {
	Chunk

	// Embedding is the fixed-length vector for this chunk's content.
	Embedding []float32
}

// DocumentVersion is one distinct (documentKey, version) pair held by a
// chunk store within its scope.
type DocumentVersion struct {
	// DocumentKey uniquely identifies the document within the scope.
	DocumentKey string

	// Version is the opaque change-detection token (content hash, blob SHA).
	Version string
}

// Scope is a caller-defined key/value filter applied to every row in a
// physical table, enabling multi-tenant sharing of one table. Every stored
// row and every delete/select carries the scope predicate.
type Scope map[string]string
