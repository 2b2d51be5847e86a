package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownProfile indicates an embedding profile id is not registered.
	ErrUnknownProfile = errors.New("unknown embedding profile")

	// ErrRateLimited indicates an upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrDocumentTooLarge indicates a loader refused to fetch an oversized document.
	ErrDocumentTooLarge = errors.New("document too large")
)

// ErrorCode classifies a domain error for machine-readable handling.
type ErrorCode string

// Error codes, one per failure category.
const (
	// CodeValidation marks a metadata schema mismatch.
	CodeValidation ErrorCode = "validation"

	// CodeDatabase marks a connection, query or transaction failure.
	CodeDatabase ErrorCode = "database"

	// CodeEmbedding marks an embedding provider call failure.
	CodeEmbedding ErrorCode = "embedding"

	// CodeConfiguration marks missing or invalid setup, detected before any work.
	CodeConfiguration ErrorCode = "configuration"

	// CodeOperation marks invalid use of an otherwise valid operation.
	CodeOperation ErrorCode = "operation"

	// CodeLoader marks a document loader failure (not-found, fetch, too-large).
	CodeLoader ErrorCode = "loader"
)

// Error is a classified domain error carrying the failed operation and a
// structured context bag (document key, table name, model id) for observability.
type Error struct {
	// Code is the machine-readable category.
	Code ErrorCode

	// Op is the operation that failed, e.g. "store.insert" or "embedder.embedMany".
	Op string

	// Err is the underlying cause, if any.
	Err error

	// Context carries structured details such as "documentKey" or "table".
	Context map[string]any
}

// E builds a classified error. Key/value pairs populate the context bag;
// a trailing unpaired key is ignored.
func E(code ErrorCode, op string, err error, kv ...any) *Error {
	e := &Error{Code: code, Op: op, Err: err}
	if len(kv) > 1 {
		e.Context = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			e.Context[key] = kv[i+1]
		}
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As matching.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from err, walking the wrap chain.
// Returns an empty code when err carries no classification.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ValidationError reports a metadata record that does not conform to its
// schema. Fields lists every violated field, not just the first.
type ValidationError struct {
	// Fields maps each violated field name to the reason it was rejected.
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "metadata validation failed: " + strings.Join(parts, "; ")
}
