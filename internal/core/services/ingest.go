package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/core/ports/driving"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure IngestPipeline implements the interface.
var _ driving.Ingestor = (*IngestPipeline)(nil)

// Pipeline defaults.
const (
	DefaultMaxEmbeddingBatch = 32
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = time.Second
	DefaultParallelLimit     = 4
)

// orphanCleanupKey is the reserved error-list key for orphan deletion failures.
const orphanCleanupKey = "(orphan cleanup)"

// DeriveFunc extracts a document key or version from a metadata record.
type DeriveFunc func(domain.Metadata) (string, error)

// MetadataField returns a DeriveFunc reading a string metadata field.
func MetadataField(name string) DeriveFunc {
	return func(md domain.Metadata) (string, error) {
		value, ok := md[name]
		if !ok {
			return "", fmt.Errorf("metadata field %q is missing", name)
		}
		s, ok := value.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("metadata field %q is not a non-empty string", name)
		}
		return s, nil
	}
}

// IngestPipeline orchestrates document loader, chunker, embedder and chunk
// store into one differential ingestion run: unchanged documents are
// skipped by version, changed ones are re-embedded and atomically replaced,
// and document keys no longer produced by the loader are removed.
type IngestPipeline struct {
	loader   driven.DocumentLoader
	chunker  *chunker.Chunker
	embedder driven.Embedder
	store    driven.ChunkStore

	keyFunc     DeriveFunc
	versionFunc DeriveFunc

	maxEmbeddingBatch int
	maxRetries        int
	retryDelay        time.Duration
	parallelLimit     int

	onProgress func(domain.Progress)
	onError    func(domain.Attempt)

	sleep func(context.Context, time.Duration) error
}

// PipelineOption configures an IngestPipeline.
type PipelineOption func(*IngestPipeline)

// WithMaxEmbeddingBatch bounds the number of chunks per embedding call.
func WithMaxEmbeddingBatch(n int) PipelineOption {
	return func(p *IngestPipeline) { p.maxEmbeddingBatch = n }
}

// WithMaxRetries sets how many attempts each document gets before its
// failure becomes permanent.
func WithMaxRetries(n int) PipelineOption {
	return func(p *IngestPipeline) { p.maxRetries = n }
}

// WithRetryDelay sets the base backoff delay; attempt k waits
// delay * 2^(k-1).
func WithRetryDelay(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) { p.retryDelay = d }
}

// WithParallelLimit bounds how many documents of one batch are processed
// concurrently.
func WithParallelLimit(n int) PipelineOption {
	return func(p *IngestPipeline) { p.parallelLimit = n }
}

// WithProgressCallback reports progress after each document and after
// orphan cleanup.
func WithProgressCallback(fn func(domain.Progress)) PipelineOption {
	return func(p *IngestPipeline) { p.onProgress = fn }
}

// WithAttemptCallback reports every per-document processing attempt,
// success or failure.
func WithAttemptCallback(fn func(domain.Attempt)) PipelineOption {
	return func(p *IngestPipeline) { p.onError = fn }
}

// NewIngestPipeline creates a pipeline. The loader, chunker, embedder,
// store and both derive functions are required; invalid tuning values fail
// construction.
func NewIngestPipeline(
	loader driven.DocumentLoader,
	chk *chunker.Chunker,
	embedder driven.Embedder,
	store driven.ChunkStore,
	keyFunc, versionFunc DeriveFunc,
	opts ...PipelineOption,
) (*IngestPipeline, error) {
	if loader == nil || chk == nil || embedder == nil || store == nil {
		return nil, domain.E(domain.CodeConfiguration, "pipeline.new", nil,
			"reason", "loader, chunker, embedder and store are all required")
	}
	if keyFunc == nil || versionFunc == nil {
		return nil, domain.E(domain.CodeConfiguration, "pipeline.new", nil,
			"reason", "key and version derivation functions are required")
	}

	p := &IngestPipeline{
		loader:            loader,
		chunker:           chk,
		embedder:          embedder,
		store:             store,
		keyFunc:           keyFunc,
		versionFunc:       versionFunc,
		maxEmbeddingBatch: DefaultMaxEmbeddingBatch,
		maxRetries:        DefaultMaxRetries,
		retryDelay:        DefaultRetryDelay,
		parallelLimit:     DefaultParallelLimit,
		sleep:             sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.maxEmbeddingBatch < 1 {
		return nil, domain.E(domain.CodeOperation, "pipeline.new", nil,
			"reason", "max embedding batch size must be positive")
	}
	if p.maxRetries < 1 {
		return nil, domain.E(domain.CodeOperation, "pipeline.new", nil,
			"reason", "max retries must be positive")
	}
	if p.parallelLimit < 1 {
		return nil, domain.E(domain.CodeOperation, "pipeline.new", nil,
			"reason", "parallel limit must be positive")
	}
	return p, nil
}

// pendingDocument is a metadata record that needs (re)processing.
type pendingDocument struct {
	key      string
	metadata domain.Metadata
}

// runState accumulates the result of one run behind a mutex; documents in a
// batch complete concurrently.
type runState struct {
	mu        sync.Mutex
	result    domain.IngestResult
	processed int
}

func (s *runState) success() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.SuccessfulDocuments++
}

func (s *runState) failure(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.FailedDocuments++
	s.result.Errors = append(s.result.Errors, domain.DocumentError{DocumentKey: key, Err: err})
}

// Ingest executes one pipeline run.
func (p *IngestPipeline) Ingest(ctx context.Context) (*domain.IngestResult, error) {
	runID := uuid.New().String()
	logger.Info("Starting ingest run %s", runID)

	// 1. Load the existing version map once, up front. A failure here is
	// outside per-document scope and aborts the whole run.
	existing, err := p.store.DocumentVersions(ctx)
	if err != nil {
		return nil, domain.E(domain.CodeOperation, "pipeline.versions", err)
	}
	versions := make(map[string]string, len(existing))
	for _, dv := range existing {
		versions[dv.DocumentKey] = dv.Version
	}
	seen := make(map[string]bool, len(versions))

	state := &runState{}
	metaCh, errCh := p.loader.LoadMetadata(ctx)

	// 2. Stream metadata, skipping unchanged documents and collecting the
	// rest into batches of parallelLimit. Batches run concurrently inside,
	// sequentially across.
	var batch []pendingDocument
	for metaCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, domain.E(domain.CodeOperation, "pipeline.stream", ctx.Err())

		case loadErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if loadErr != nil {
				// Loader enumeration failure fails the run as a whole.
				return nil, domain.E(domain.CodeOperation, "pipeline.loadMetadata", loadErr)
			}

		case md, ok := <-metaCh:
			if !ok {
				metaCh = nil
				continue
			}
			state.result.TotalDocuments++

			key, derr := p.keyFunc(md)
			if derr != nil {
				state.failure(identify(md), fmt.Errorf("derive document key: %w", derr))
				continue
			}
			seen[key] = true

			version, derr := p.versionFunc(md)
			if derr != nil {
				state.failure(key, fmt.Errorf("derive document version: %w", derr))
				continue
			}

			if stored, ok := versions[key]; ok && stored == version {
				logger.Debug("Skipping %s: version %s unchanged", key, version)
				state.success()
				p.reportProgress(state, key)
				continue
			}

			batch = append(batch, pendingDocument{key: key, metadata: md})
			if len(batch) >= p.parallelLimit {
				p.runBatch(ctx, batch, state)
				batch = batch[:0]
			}
		}
	}

	if len(batch) > 0 {
		p.runBatch(ctx, batch, state)
	}

	// 3. Remove orphans: keys stored before this run but never produced by
	// the loader. A failure is recorded, not fatal; prior inserts stand.
	var orphans []string
	for key := range versions {
		if !seen[key] {
			orphans = append(orphans, key)
		}
	}
	if len(orphans) > 0 {
		logger.Info("Removing %d orphaned documents", len(orphans))
		if err := p.store.DeleteBatch(ctx, orphans); err != nil {
			state.failure(orphanCleanupKey, err)
		}
	}
	p.reportProgress(state, "")

	logger.Info("Ingest run %s complete: %d total, %d ok, %d failed",
		runID, state.result.TotalDocuments, state.result.SuccessfulDocuments, state.result.FailedDocuments)
	return &state.result, nil
}

// runBatch processes one batch of documents concurrently.
func (p *IngestPipeline) runBatch(ctx context.Context, batch []pendingDocument, state *runState) {
	var wg sync.WaitGroup
	for _, doc := range batch {
		wg.Add(1)
		go func(doc pendingDocument) {
			defer wg.Done()
			if err := p.processWithRetry(ctx, doc); err != nil {
				state.failure(doc.key, err)
			} else {
				state.success()
			}
			p.reportProgress(state, doc.key)
		}(doc)
	}
	wg.Wait()
}

// processWithRetry runs the per-document pipeline under the exponential
// backoff policy, reporting every attempt through the error callback.
func (p *IngestPipeline) processWithRetry(ctx context.Context, doc pendingDocument) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		err := p.processOnce(ctx, doc)
		p.reportAttempt(domain.Attempt{DocumentKey: doc.key, Number: attempt, Err: err})
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("Attempt %d/%d failed for %s: %v", attempt, p.maxRetries, doc.key, err)

		if attempt < p.maxRetries {
			delay := p.retryDelay * (1 << (attempt - 1))
			if serr := p.sleep(ctx, delay); serr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

// processOnce runs load -> chunk -> embed -> store for one document.
func (p *IngestPipeline) processOnce(ctx context.Context, doc pendingDocument) error {
	document, err := p.loader.LoadDocument(ctx, doc.metadata)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if document == nil {
		// The document vanished between enumeration and fetch. Not an error.
		logger.Debug("Document %s no longer available, skipping", doc.key)
		return nil
	}

	chunks := p.chunker.Chunk(document.Content)
	if len(chunks) == 0 {
		logger.Debug("Document %s produced no chunks", doc.key)
		return nil
	}

	// Embed in bounded sub-batches, sequentially, preserving chunk order so
	// every chunk index lines up with its embedding.
	embedded := make([]domain.ChunkWithEmbedding, 0, len(chunks))
	for offset := 0; offset < len(chunks); offset += p.maxEmbeddingBatch {
		end := offset + p.maxEmbeddingBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		vectors, err := p.embedder.EmbedMany(ctx, chunks[offset:end])
		if err != nil {
			return fmt.Errorf("embed chunks [%d:%d]: %w", offset, end, err)
		}
		for i, vec := range vectors {
			embedded = append(embedded, domain.ChunkWithEmbedding{
				Chunk:     domain.Chunk{Content: chunks[offset+i], Index: offset + i},
				Embedding: vec,
			})
		}
	}

	if err := p.store.Insert(ctx, doc.key, embedded, document.Metadata); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	return nil
}

// reportProgress invokes the progress callback; a panicking callback is
// logged and swallowed.
func (p *IngestPipeline) reportProgress(state *runState, key string) {
	if p.onProgress == nil {
		return
	}
	state.mu.Lock()
	state.processed++
	progress := domain.Progress{Processed: state.processed, DocumentKey: key}
	state.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked: %v", r)
		}
	}()
	p.onProgress(progress)
}

// reportAttempt invokes the attempt callback; a panicking callback is
// logged and swallowed.
func (p *IngestPipeline) reportAttempt(attempt domain.Attempt) {
	if p.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("attempt callback panicked: %v", r)
		}
	}()
	p.onError(attempt)
}

// identify produces a best-effort identifier for a metadata record whose
// document key could not be derived.
func identify(md domain.Metadata) string {
	for _, field := range []string{"path", "uri", "name", "id"} {
		if v, ok := md[field].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("%v", md)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
