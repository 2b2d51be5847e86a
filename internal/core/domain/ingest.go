package domain

import "time"

// DocumentError records one document's permanent failure during an ingest run.
type DocumentError struct {
	// DocumentKey identifies the failed document. For failures that occur
	// before a key can be derived, this holds a best-effort identifier.
	DocumentKey string

	// Err is the final error after retries were exhausted.
	Err error
}

// IngestResult accumulates the outcome of one pipeline run. It is returned
// to the caller and never persisted.
type IngestResult struct {
	// TotalDocuments is the number of documents enumerated by the loader.
	TotalDocuments int

	// SuccessfulDocuments counts documents stored, version-skipped or
	// silently skipped because the loader no longer had their content.
	SuccessfulDocuments int

	// FailedDocuments counts documents whose processing failed permanently.
	FailedDocuments int

	// Errors lists one entry per failed document, plus orphan-cleanup
	// failures under the reserved key "(orphan cleanup)".
	Errors []DocumentError
}

// Progress is reported through the pipeline's progress callback after each
// processed document and after orphan cleanup.
type Progress struct {
	// Processed is the number of documents handled so far in this run.
	Processed int

	// DocumentKey is the key of the document just handled. Empty for the
	// orphan-cleanup report.
	DocumentKey string
}

// Attempt is reported through the pipeline's error callback once per
// per-document processing attempt, success or failure.
type Attempt struct {
	// DocumentKey identifies the document being processed.
	DocumentKey string

	// Number is the 1-based attempt counter.
	Number int

	// Err is nil when the attempt succeeded.
	Err error
}

// Usage carries token accounting from an embedding provider call.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// EmbeddingEvent is delivered to the embedder's completion callback after a
// successful provider call.
type EmbeddingEvent struct {
	// Texts are the inputs that were embedded, in request order.
	Texts []string

	// Embeddings are the produced vectors, aligned with Texts.
	Embeddings [][]float32

	// Model and Provider identify the embedding profile that served the call.
	Model    string
	Provider string

	// Dimensions is the vector width.
	Dimensions int

	// Usage is the provider's token accounting, when reported.
	Usage Usage

	// Operation is "embed" or "embedMany".
	Operation string

	// StartTime and EndTime bracket the provider call.
	StartTime time.Time
	EndTime   time.Time
}
