package driven

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// DocumentLoader enumerates a source's documents lazily and fetches their
// content on demand. Each ingestion run calls LoadMetadata afresh; the
// stream is restartable per call and potentially unbounded.
type DocumentLoader interface {
	// LoadMetadata streams document metadata records. Both channels are
	// closed when enumeration finishes; an error on the second channel
	// aborts the consuming run.
	LoadMetadata(ctx context.Context) (<-chan domain.Metadata, <-chan error)

	// LoadDocument fetches the full document for a metadata record.
	// A nil document with a nil error signals the document is no longer
	// available; that is not an error.
	LoadDocument(ctx context.Context, metadata domain.Metadata) (*domain.Document, error)
}
