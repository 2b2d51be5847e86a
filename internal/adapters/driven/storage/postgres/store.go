// Package postgres provides a pgvector-backed chunk store. One physical
// table holds the chunks of many tenants; every row carries the store's
// scope columns and embedding profile id, and every statement repeats the
// scope predicate.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.ChunkStore = (*Store)(nil)

// DefaultProfileIDColumn holds the embedding profile id on every row.
const DefaultProfileIDColumn = "embedding_profile_id"

// DefaultMaxParameters is the Postgres wire-protocol bind parameter limit.
const DefaultMaxParameters = 65535

// Config configures a Store.
type Config struct {
	// DB is the shared connection pool (required).
	DB *sql.DB

	// Table is the physical table name (required).
	Table string

	// Schema describes the metadata fields stored alongside each chunk.
	Schema domain.Schema

	// Scope is the tenant filter applied to every row and statement.
	Scope domain.Scope

	// ProfileID is the embedding profile id this store serves.
	ProfileID int

	// VersionField names the metadata field whose value lands in the
	// version column (required).
	VersionField string

	// RequiredColumns overrides the physical names of required columns.
	RequiredColumns RequiredColumns

	// MetadataColumns overrides physical names per metadata field.
	MetadataColumns map[string]string

	// MaxBatchSize caps rows per INSERT statement. Zero derives the cap
	// from MaxParameters alone.
	MaxBatchSize int

	// MaxParameters is the bind parameter ceiling per statement.
	// Zero means DefaultMaxParameters.
	MaxParameters int
}

// Store is a chunk store on a relational table with a pgvector embedding
// column. The column mapping and scope must not be mutated after New.
type Store struct {
	db        *sql.DB
	table     string
	schema    domain.Schema
	scope     domain.Scope
	profileID int

	versionField string
	mapping      *ColumnMapping
	profileCol   string
	batchRows    int
}

// New creates a store and validates its configuration: table name, column
// mapping coverage, version field presence and batch sizing all fail fast
// here rather than on first use.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, domain.E(domain.CodeConfiguration, "store.new", nil,
			"reason", "database pool is required")
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return nil, domain.E(domain.CodeConfiguration, "store.new", nil,
			"table", cfg.Table, "reason", "invalid table name")
	}
	mapping, err := NewColumnMapping(cfg.Schema, cfg.Scope, cfg.VersionField, cfg.RequiredColumns, cfg.MetadataColumns)
	if err != nil {
		return nil, err
	}

	maxParams := cfg.MaxParameters
	if maxParams == 0 {
		maxParams = DefaultMaxParameters
	}
	columnsPerRow := len(mapping.allColumns()) + 1 // + profile id
	batchRows := maxParams / columnsPerRow
	if batchRows < 1 {
		return nil, domain.E(domain.CodeOperation, "store.new", nil,
			"reason", "parameter ceiling too small for a single row")
	}
	if cfg.MaxBatchSize > 0 && cfg.MaxBatchSize < batchRows {
		batchRows = cfg.MaxBatchSize
	}

	return &Store{
		db:           cfg.DB,
		table:        cfg.Table,
		schema:       cfg.Schema,
		scope:        cfg.Scope,
		profileID:    cfg.ProfileID,
		versionField: cfg.VersionField,
		mapping:      mapping,
		profileCol:   DefaultProfileIDColumn,
		batchRows:    batchRows,
	}, nil
}

// Mapping exposes the validated column mapping.
func (s *Store) Mapping() *ColumnMapping {
	return s.mapping
}

// BatchRows reports how many rows one INSERT statement may carry.
func (s *Store) BatchRows() int {
	return s.batchRows
}

// Insert atomically replaces all rows for documentKey. The delete and all
// batched inserts run in one transaction, so a concurrent reader sees
// either the old chunks or the new ones, never a mix.
func (s *Store) Insert(ctx context.Context, documentKey string, chunks []domain.ChunkWithEmbedding, metadata domain.Metadata) error {
	if err := s.schema.Validate(metadata); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	version, ok := metadata[s.versionField].(string)
	if !ok {
		return domain.E(domain.CodeValidation, "store.insert", nil,
			"documentKey", documentKey, "field", s.versionField,
			"reason", "version field must be a string")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dbErr("store.insert", documentKey, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query, args := s.buildScopedDelete([]string{documentKey})
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return s.dbErr("store.insert", documentKey, err)
	}

	for _, stmt := range s.insertStatements(documentKey, version, chunks, metadata) {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return s.dbErr("store.insert", documentKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.dbErr("store.insert", documentKey, err)
	}
	logger.Debug("Stored %d chunks for %s (version %s)", len(chunks), documentKey, version)
	return nil
}

// Delete removes all rows for one document key. Idempotent.
func (s *Store) Delete(ctx context.Context, documentKey string) error {
	query, args := s.buildScopedDelete([]string{documentKey})
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.dbErr("store.delete", documentKey, err)
	}
	return nil
}

// DeleteBatch removes rows for many document keys in one statement.
func (s *Store) DeleteBatch(ctx context.Context, documentKeys []string) error {
	if len(documentKeys) == 0 {
		return nil
	}
	query, args := s.buildScopedDelete(documentKeys)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.dbErr("store.deleteBatch", strings.Join(documentKeys, ","), err)
	}
	return nil
}

// DocumentVersions returns the distinct (documentKey, version) pairs in scope.
func (s *Store) DocumentVersions(ctx context.Context) ([]domain.DocumentVersion, error) {
	query, args := s.buildVersionsQuery()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dbErr("store.versions", "", err)
	}
	defer rows.Close()

	var out []domain.DocumentVersion
	for rows.Next() {
		var dv domain.DocumentVersion
		if err := rows.Scan(&dv.DocumentKey, &dv.Version); err != nil {
			return nil, s.dbErr("store.versions", "", err)
		}
		out = append(out, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbErr("store.versions", "", err)
	}
	return out, nil
}

// SearchSimilar runs one parameterised similarity statement and maps rows
// back through the column mapping, re-validating metadata on the way out.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, filters map[string]any, limit int, threshold float64) ([]domain.QueryResult, error) {
	query, args, err := s.buildSearchQuery(embedding, filters, limit, threshold)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dbErr("store.search", "", err)
	}
	defer rows.Close()

	fields := s.mapping.MetadataFields()
	var out []domain.QueryResult
	for rows.Next() {
		result, err := s.scanResult(rows, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbErr("store.search", "", err)
	}
	return out, nil
}

// Close is a no-op: the pool is shared and owned by the registry.
func (s *Store) Close() error {
	return nil
}

// --- statement builders ---

// scopePredicate appends the scope and profile equality conditions to where,
// continuing the placeholder numbering from *arg.
func (s *Store) scopePredicate(where *[]string, args *[]any) {
	*where = append(*where, fmt.Sprintf("%s = $%d", s.profileCol, len(*args)+1))
	*args = append(*args, s.profileID)
	for _, key := range s.mapping.ScopeKeys() {
		col, _ := s.mapping.ScopeColumn(key)
		*where = append(*where, fmt.Sprintf("%s = $%d", col, len(*args)+1))
		*args = append(*args, s.scope[key])
	}
}

func (s *Store) buildScopedDelete(documentKeys []string) (string, []any) {
	var where []string
	var args []any
	s.scopePredicate(&where, &args)

	placeholders := make([]string, len(documentKeys))
	for i, key := range documentKeys {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, key)
	}
	where = append(where, fmt.Sprintf("%s IN (%s)", s.mapping.documentKey, strings.Join(placeholders, ", ")))

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.table, strings.Join(where, " AND "))
	return query, args
}

// statement pairs a built query with its bind arguments.
type statement struct {
	query string
	args  []any
}

// insertStatements slices chunks into batches of at most batchRows rows and
// builds one INSERT per batch, preserving chunk order across statements.
func (s *Store) insertStatements(documentKey, version string, chunks []domain.ChunkWithEmbedding, metadata domain.Metadata) []statement {
	out := make([]statement, 0, (len(chunks)+s.batchRows-1)/s.batchRows)
	for offset := 0; offset < len(chunks); offset += s.batchRows {
		end := offset + s.batchRows
		if end > len(chunks) {
			end = len(chunks)
		}
		query, args := s.buildInsert(documentKey, version, chunks[offset:end], metadata)
		out = append(out, statement{query: query, args: args})
	}
	return out
}

func (s *Store) buildInsert(documentKey, version string, chunks []domain.ChunkWithEmbedding, metadata domain.Metadata) (string, []any) {
	fields := s.mapping.MetadataFields()
	scopeKeys := s.mapping.ScopeKeys()

	columns := []string{
		s.mapping.documentKey,
		s.mapping.chunkContent,
		s.mapping.chunkIndex,
		s.mapping.embedding,
		s.mapping.version,
		s.profileCol,
	}
	for _, field := range fields {
		col, _ := s.mapping.MetadataColumn(field)
		columns = append(columns, col)
	}
	for _, key := range scopeKeys {
		col, _ := s.mapping.ScopeColumn(key)
		columns = append(columns, col)
	}

	args := make([]any, 0, len(chunks)*len(columns))
	values := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		placeholders := make([]string, 0, len(columns))
		row := []any{documentKey, chunk.Content, chunk.Index, pgvector.NewVector(chunk.Embedding), version, s.profileID}
		for _, field := range fields {
			row = append(row, metadata[field])
		}
		for _, key := range scopeKeys {
			row = append(row, s.scope[key])
		}
		for range row {
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+len(placeholders)+1))
		}
		args = append(args, row...)
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		s.table, strings.Join(columns, ", "), strings.Join(values, ", "))
	return query, args
}

func (s *Store) buildVersionsQuery() (string, []any) {
	var where []string
	var args []any
	s.scopePredicate(&where, &args)

	query := fmt.Sprintf("SELECT DISTINCT %s, %s FROM %s WHERE %s",
		s.mapping.documentKey, s.mapping.version, s.table, strings.Join(where, " AND "))
	return query, args
}

func (s *Store) buildSearchQuery(embedding []float32, filters map[string]any, limit int, threshold float64) (string, []any, error) {
	if limit < 1 {
		return "", nil, domain.E(domain.CodeOperation, "store.search", nil,
			"reason", "limit must be positive")
	}

	fields := s.mapping.MetadataFields()
	selectCols := []string{
		s.mapping.documentKey,
		s.mapping.chunkContent,
		s.mapping.chunkIndex,
	}
	for _, field := range fields {
		col, _ := s.mapping.MetadataColumn(field)
		selectCols = append(selectCols, col)
	}
	selectCols = append(selectCols, s.mapping.version)

	args := []any{pgvector.NewVector(embedding)}
	similarity := fmt.Sprintf("1 - (%s <=> $1)", s.mapping.embedding)

	var where []string
	s.scopePredicate(&where, &args)

	for _, field := range sortedFilterFields(filters) {
		col, ok := s.mapping.MetadataColumn(field)
		if !ok {
			return "", nil, domain.E(domain.CodeValidation, "store.search", nil,
				"field", field, "reason", "filter field is not in the schema")
		}
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)+1))
		args = append(args, filters[field])
	}

	if threshold > 0 {
		where = append(where, fmt.Sprintf("%s >= $%d", similarity, len(args)+1))
		args = append(args, threshold)
	}

	args = append(args, limit)
	query := fmt.Sprintf(
		"SELECT %s, %s AS similarity FROM %s WHERE %s ORDER BY similarity DESC LIMIT $%d",
		strings.Join(selectCols, ", "), similarity, s.table,
		strings.Join(where, " AND "), len(args))
	return query, args, nil
}

// scanResult maps one row back into a QueryResult, reversing the column
// mapping and re-validating the reconstructed metadata. A malformed stored
// row surfaces as a validation error rather than corrupt metadata.
func (s *Store) scanResult(rows *sql.Rows, fields []string) (*domain.QueryResult, error) {
	var (
		documentKey string
		content     string
		index       int
		version     string
		similarity  float64
	)
	metaValues := make([]any, len(fields))
	dest := []any{&documentKey, &content, &index}
	for i := range metaValues {
		dest = append(dest, &metaValues[i])
	}
	dest = append(dest, &version, &similarity)

	if err := rows.Scan(dest...); err != nil {
		return nil, s.dbErr("store.search", "", err)
	}

	raw := make(domain.Metadata, len(fields)+1)
	for i, field := range fields {
		raw[field] = driverValue(metaValues[i])
	}
	raw[s.versionField] = version
	metadata, err := s.schema.Normalise(raw)
	if err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		Chunk:      domain.Chunk{Content: content, Index: index},
		Similarity: similarity,
		Metadata:   metadata,
	}, nil
}

// driverValue unwraps driver-level representations (text as []byte).
func driverValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func sortedFilterFields(filters map[string]any) []string {
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (s *Store) dbErr(op, documentKey string, err error) error {
	kv := []any{"table", s.table}
	if documentKey != "" {
		kv = append(kv, "documentKey", documentKey)
	}
	return domain.E(domain.CodeDatabase, op, err, kv...)
}
