// Package sqlite provides an embedded chunk store for local, single-user
// setups. Embeddings are stored as little-endian float32 blobs and ranked
// by cosine similarity in process, so no database extension is needed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.ChunkStore = (*Store)(nil)

// Config configures a Store.
type Config struct {
	// Path is the database file path. Empty defaults to
	// ~/.corpora/data/chunks.db. Use ":memory:" for an in-memory store.
	Path string

	// Schema describes the metadata fields stored alongside each chunk.
	Schema domain.Schema

	// Scope is the tenant filter applied to every row and statement.
	Scope domain.Scope

	// ProfileID is the embedding profile id this store serves.
	ProfileID int

	// VersionField names the metadata field whose value lands in the
	// version column (required).
	VersionField string
}

// Store is a chunk store on a single SQLite table. Rows carry the scope
// as a canonical JSON document and the embedding profile id, so several
// scoped stores can share one file.
type Store struct {
	db        *sql.DB
	path      string
	schema    domain.Schema
	scopeJSON string
	profileID int

	versionField string
}

// New opens (or creates) the database and ensures the chunks table exists.
func New(cfg Config) (*Store, error) {
	if cfg.VersionField == "" {
		return nil, domain.E(domain.CodeConfiguration, "sqlite.new", nil,
			"reason", "no version field mapped")
	}
	field, ok := cfg.Schema[cfg.VersionField]
	if !ok {
		return nil, domain.E(domain.CodeConfiguration, "sqlite.new", nil,
			"field", cfg.VersionField, "reason", "version field is not in the schema")
	}
	if field.Type != domain.FieldTypeString {
		return nil, domain.E(domain.CodeConfiguration, "sqlite.new", nil,
			"field", cfg.VersionField, "reason", "version field must be declared as a string")
	}

	path := cfg.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir := filepath.Join(home, ".corpora", "data")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dir, "chunks.db")
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Keys in a Go map marshal in sorted order, so equal scopes always
	// produce byte-identical JSON and plain string equality works.
	scopeJSON, err := json.Marshal(cfg.Scope)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("encoding scope: %w", err)
	}

	s := &Store{
		db:           db,
		path:         path,
		schema:       cfg.Schema,
		scopeJSON:    string(scopeJSON),
		profileID:    cfg.ProfileID,
		versionField: cfg.VersionField,
	}
	if err := s.ensureTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensureTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			document_key TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			version TEXT NOT NULL,
			embedding_profile_id INTEGER NOT NULL,
			scope TEXT NOT NULL,
			metadata TEXT NOT NULL,
			PRIMARY KEY (scope, embedding_profile_id, document_key, chunk_index)
		)
	`)
	if err != nil {
		return s.dbErr("sqlite.init", "", err)
	}
	return nil
}

// Insert atomically replaces all rows for documentKey inside one
// transaction.
func (s *Store) Insert(ctx context.Context, documentKey string, chunks []domain.ChunkWithEmbedding, metadata domain.Metadata) error {
	if err := s.schema.Validate(metadata); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	version, ok := metadata[s.versionField].(string)
	if !ok {
		return domain.E(domain.CodeValidation, "sqlite.insert", nil,
			"documentKey", documentKey, "field", s.versionField,
			"reason", "version field must be a string")
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return domain.E(domain.CodeValidation, "sqlite.insert", err,
			"documentKey", documentKey)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dbErr("sqlite.insert", documentKey, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE scope = ? AND embedding_profile_id = ? AND document_key = ?",
		s.scopeJSON, s.profileID, documentKey); err != nil {
		return s.dbErr("sqlite.insert", documentKey, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks
			(document_key, chunk_index, chunk_content, embedding, version, embedding_profile_id, scope, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return s.dbErr("sqlite.insert", documentKey, err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx,
			documentKey, chunk.Index, chunk.Content,
			float32SliceToBytes(chunk.Embedding), version,
			s.profileID, s.scopeJSON, string(metadataJSON)); err != nil {
			return s.dbErr("sqlite.insert", documentKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.dbErr("sqlite.insert", documentKey, err)
	}
	logger.Debug("Stored %d chunks for %s (version %s)", len(chunks), documentKey, version)
	return nil
}

// Delete removes all rows for one document key. Idempotent.
func (s *Store) Delete(ctx context.Context, documentKey string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE scope = ? AND embedding_profile_id = ? AND document_key = ?",
		s.scopeJSON, s.profileID, documentKey)
	if err != nil {
		return s.dbErr("sqlite.delete", documentKey, err)
	}
	return nil
}

// DeleteBatch removes rows for many document keys in one statement.
func (s *Store) DeleteBatch(ctx context.Context, documentKeys []string) error {
	if len(documentKeys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(documentKeys)), ", ")
	args := []any{s.scopeJSON, s.profileID}
	for _, key := range documentKeys {
		args = append(args, key)
	}
	query := fmt.Sprintf(
		"DELETE FROM chunks WHERE scope = ? AND embedding_profile_id = ? AND document_key IN (%s)",
		placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.dbErr("sqlite.deleteBatch", strings.Join(documentKeys, ","), err)
	}
	return nil
}

// DocumentVersions returns the distinct (documentKey, version) pairs in scope.
func (s *Store) DocumentVersions(ctx context.Context) ([]domain.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT document_key, version FROM chunks WHERE scope = ? AND embedding_profile_id = ?",
		s.scopeJSON, s.profileID)
	if err != nil {
		return nil, s.dbErr("sqlite.versions", "", err)
	}
	defer rows.Close()

	var out []domain.DocumentVersion
	for rows.Next() {
		var dv domain.DocumentVersion
		if err := rows.Scan(&dv.DocumentKey, &dv.Version); err != nil {
			return nil, s.dbErr("sqlite.versions", "", err)
		}
		out = append(out, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbErr("sqlite.versions", "", err)
	}
	return out, nil
}

// SearchSimilar scans the scoped rows, computes cosine similarity in
// process and returns the best matches. Adequate for the corpus sizes an
// embedded store serves; larger deployments use the pgvector store.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, filters map[string]any, limit int, threshold float64) ([]domain.QueryResult, error) {
	if limit < 1 {
		return nil, domain.E(domain.CodeOperation, "sqlite.search", nil,
			"reason", "limit must be positive")
	}
	for field := range filters {
		if _, ok := s.schema[field]; !ok {
			return nil, domain.E(domain.CodeValidation, "sqlite.search", nil,
				"field", field, "reason", "filter field is not in the schema")
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_content, chunk_index, embedding, metadata FROM chunks WHERE scope = ? AND embedding_profile_id = ?",
		s.scopeJSON, s.profileID)
	if err != nil {
		return nil, s.dbErr("sqlite.search", "", err)
	}
	defer rows.Close()

	var out []domain.QueryResult
	for rows.Next() {
		var (
			content       string
			index         int
			embeddingBlob []byte
			metadataJSON  string
		)
		if err := rows.Scan(&content, &index, &embeddingBlob, &metadataJSON); err != nil {
			return nil, s.dbErr("sqlite.search", "", err)
		}

		var raw domain.Metadata
		if err := json.Unmarshal([]byte(metadataJSON), &raw); err != nil {
			return nil, s.dbErr("sqlite.search", "", err)
		}
		metadata, err := s.schema.Normalise(raw)
		if err != nil {
			return nil, err
		}
		if !matchesFilters(metadata, filters) {
			continue
		}

		similarity := cosineSimilarity(embedding, bytesToFloat32Slice(embeddingBlob))
		if threshold > 0 && similarity < threshold {
			continue
		}
		out = append(out, domain.QueryResult{
			Chunk:      domain.Chunk{Content: content, Index: index},
			Similarity: similarity,
			Metadata:   metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbErr("sqlite.search", "", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func matchesFilters(metadata domain.Metadata, filters map[string]any) bool {
	for field, want := range filters {
		if metadata[field] != want {
			return false
		}
	}
	return true
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty, zero or of mismatched length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func (s *Store) dbErr(op, documentKey string, err error) error {
	kv := []any{"path", s.path}
	if documentKey != "" {
		kv = append(kv, "documentKey", documentKey)
	}
	return domain.E(domain.CodeDatabase, op, err, kv...)
}
