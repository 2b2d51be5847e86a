package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)
		assert.Equal(t, StorageSQLite, cfg.Storage)
		assert.Equal(t, 1, cfg.EmbeddingProfileID)
		assert.Equal(t, "version", cfg.VersionField)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
storage = "postgres"
table_name = "chunks"
embedding_profile_id = 2
version_field = "version"
parallel_limit = 8
retry_delay_ms = 250

[database]
connection_string = "postgres://localhost/corpora"

[scope]
tenant = "acme"

[metadata_schema.path]
type = "string"
required = true

[metadata_schema.version]
type = "string"
required = true

[chunker]
max_lines = 20
overlap = 2

[source]
type = "filesystem"
root = "/srv/docs"
patterns = ["*.md"]
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, StoragePostgres, cfg.Storage)
		assert.Equal(t, "chunks", cfg.TableName)
		assert.Equal(t, 2, cfg.EmbeddingProfileID)
		assert.Equal(t, map[string]string{"tenant": "acme"}, cfg.Scope)
		assert.Equal(t, 8, cfg.ParallelLimit)
		assert.Equal(t, 250, cfg.RetryDelayMS)
		assert.Equal(t, 20, cfg.Chunker.MaxLines)
		assert.Equal(t, []string{"*.md"}, cfg.Source.Patterns)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeConfig(t, `
storage = "postgres"
table_name = "chunks"

[database]
connection_string = "postgres://file/db"

[openai]
api_key = "sk-from-file"
`)
		t.Setenv("CORPORA_DATABASE_URL", "postgres://env/db")
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/db", cfg.Database.ConnectionString)
		assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	})

	t.Run("invalid TOML fails", func(t *testing.T) {
		path := writeConfig(t, "storage = [broken")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("unknown storage backend", func(t *testing.T) {
		cfg := Default()
		cfg.Storage = "dynamo"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	})

	t.Run("postgres needs a table name", func(t *testing.T) {
		cfg := Default()
		cfg.Storage = StoragePostgres
		assert.Error(t, cfg.Validate())

		cfg.TableName = "chunks"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown source type", func(t *testing.T) {
		cfg := Default()
		cfg.Source.Type = "gopher"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown schema field type", func(t *testing.T) {
		cfg := Default()
		cfg.MetadataSchema["weird"] = SchemaField{Type: "decimal"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	})
}

func TestSchema(t *testing.T) {
	cfg := Default()
	cfg.MetadataSchema = map[string]SchemaField{
		"path":  {Type: "string", Required: true},
		"count": {Type: "int"},
		"score": {Type: "float"},
		"flag":  {Type: "bool"},
	}

	schema, err := cfg.Schema()
	require.NoError(t, err)
	assert.Equal(t, domain.Field{Type: domain.FieldTypeString, Required: true}, schema["path"])
	assert.Equal(t, domain.FieldTypeInt, schema["count"].Type)
	assert.Equal(t, domain.FieldTypeFloat, schema["score"].Type)
	assert.Equal(t, domain.FieldTypeBool, schema["flag"].Type)
}

func TestSetAPIKey(t *testing.T) {
	t.Run("preserves existing settings", func(t *testing.T) {
		path := writeConfig(t, `
storage = "sqlite"
parallel_limit = 8
`)
		require.NoError(t, SetAPIKey(path, "sk-new"))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-new", cfg.OpenAI.APIKey)
		assert.Equal(t, 8, cfg.ParallelLimit)
	})

	t.Run("creates the file when absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFileName)
		require.NoError(t, SetAPIKey(path, "sk-new"))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})
}
