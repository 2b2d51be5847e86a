package postgres

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// Default physical column names for the required logical fields.
const (
	DefaultDocumentKeyColumn  = "document_key"
	DefaultChunkContentColumn = "chunk_content"
	DefaultChunkIndexColumn   = "chunk_index"
	DefaultEmbeddingColumn    = "embedding"
	DefaultVersionColumn      = "version"
)

// RequiredColumns overrides the physical names of the required logical
// fields. Empty fields keep their defaults.
type RequiredColumns struct {
	DocumentKey  string
	ChunkContent string
	ChunkIndex   string
	Embedding    string
	Version      string
}

// ColumnMapping is the immutable association from logical field names to
// physical column names, shared by inserts and similarity searches. The
// version field is special: its value lives in the version column, so it
// gets no metadata column of its own. Build one with NewColumnMapping; it
// is validated to cover every required and every metadata field before
// first use.
type ColumnMapping struct {
	documentKey  string
	chunkContent string
	chunkIndex   string
	embedding    string
	version      string

	// versionField is the logical metadata field backing the version column.
	versionField string

	// metadata maps logical metadata field -> physical column.
	metadata map[string]string

	// scope maps scope key -> physical column.
	scope map[string]string
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewColumnMapping builds and validates a mapping for schema and scope.
// Metadata fields default to the snake_case of the field name; overrides
// replace defaults per field. Construction fails on uncovered fields,
// invalid identifiers or physical column collisions.
func NewColumnMapping(
	schema domain.Schema,
	scope domain.Scope,
	versionField string,
	required RequiredColumns,
	metadataOverrides map[string]string,
) (*ColumnMapping, error) {
	if versionField == "" {
		return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
			"reason", "no version field mapped")
	}
	field, ok := schema[versionField]
	if !ok {
		return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
			"field", versionField, "reason", "version field is not in the schema")
	}
	if field.Type != domain.FieldTypeString {
		return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
			"field", versionField, "reason", "version field must be declared as a string")
	}

	m := &ColumnMapping{
		documentKey:  defaultColumn(required.DocumentKey, DefaultDocumentKeyColumn),
		chunkContent: defaultColumn(required.ChunkContent, DefaultChunkContentColumn),
		chunkIndex:   defaultColumn(required.ChunkIndex, DefaultChunkIndexColumn),
		embedding:    defaultColumn(required.Embedding, DefaultEmbeddingColumn),
		version:      defaultColumn(required.Version, DefaultVersionColumn),
		versionField: versionField,
		metadata:     make(map[string]string, len(schema)),
		scope:        make(map[string]string, len(scope)),
	}

	for name := range metadataOverrides {
		if name == versionField {
			return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
				"field", name, "reason", "version field is stored in the version column")
		}
		if _, ok := schema[name]; !ok {
			return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
				"field", name, "reason", "override targets a field not in the schema")
		}
	}

	for name := range schema {
		if name == versionField {
			continue
		}
		column := metadataOverrides[name]
		if column == "" {
			column = snakeCase(name)
		}
		m.metadata[name] = column
	}
	for key := range scope {
		m.scope[key] = snakeCase(key)
	}

	seen := make(map[string]string)
	for _, col := range m.allColumns() {
		if !identifierPattern.MatchString(col.physical) {
			return nil, domain.E(domain.CodeConfiguration, "columns.new", nil,
				"column", col.physical, "reason", "not a valid identifier")
		}
		if prev, ok := seen[col.physical]; ok {
			return nil, domain.E(domain.CodeConfiguration, "columns.new",
				fmt.Errorf("column %q mapped by both %q and %q", col.physical, prev, col.logical))
		}
		seen[col.physical] = col.logical
	}

	return m, nil
}

// mappedColumn pairs a logical field with its physical column.
type mappedColumn struct {
	logical  string
	physical string
}

// allColumns returns every mapped column, required fields first.
func (m *ColumnMapping) allColumns() []mappedColumn {
	cols := []mappedColumn{
		{"documentKey", m.documentKey},
		{"chunkContent", m.chunkContent},
		{"chunkIndex", m.chunkIndex},
		{"embedding", m.embedding},
		{"version", m.version},
	}
	for _, name := range sortedKeys(m.metadata) {
		cols = append(cols, mappedColumn{name, m.metadata[name]})
	}
	for _, key := range sortedKeys(m.scope) {
		cols = append(cols, mappedColumn{key, m.scope[key]})
	}
	return cols
}

// VersionField returns the logical metadata field backing the version column.
func (m *ColumnMapping) VersionField() string {
	return m.versionField
}

// MetadataColumn returns the physical column for a logical metadata field.
func (m *ColumnMapping) MetadataColumn(field string) (string, bool) {
	col, ok := m.metadata[field]
	return col, ok
}

// MetadataFields returns the logical metadata field names in sorted order.
func (m *ColumnMapping) MetadataFields() []string {
	return sortedKeys(m.metadata)
}

// ScopeColumn returns the physical column for a scope key.
func (m *ColumnMapping) ScopeColumn(key string) (string, bool) {
	col, ok := m.scope[key]
	return col, ok
}

// ScopeKeys returns the scope keys in sorted order.
func (m *ColumnMapping) ScopeKeys() []string {
	return sortedKeys(m.scope)
}

func defaultColumn(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// snakeCase converts a camelCase or PascalCase field name to snake_case.
func snakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
