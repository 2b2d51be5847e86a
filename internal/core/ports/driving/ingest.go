package driving

import (
	"context"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// Ingestor runs document ingestion: loader enumeration, differential
// versioning, chunking, embedding and storage.
type Ingestor interface {
	// Ingest executes one run and returns the accumulated result, which is
	// complete even on partial failure. Only a loader enumeration failure
	// or an initial version-map fetch failure aborts the run without a
	// result.
	Ingest(ctx context.Context) (*domain.IngestResult, error)
}
