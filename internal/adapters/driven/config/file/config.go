// Package file provides the TOML configuration surface. One file
// describes the storage backend, the metadata schema, the embedding
// profile and the source to ingest from.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

// DefaultFileName is the config file name under the config directory.
const DefaultFileName = "config.toml"

// Storage backend names.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Source kinds.
const (
	SourceFilesystem = "filesystem"
	SourceGitHub     = "github"
)

// Config is the full configuration surface.
type Config struct {
	// Storage selects the chunk store backend: "postgres" or "sqlite".
	Storage string `toml:"storage"`

	Database DatabaseConfig `toml:"database"`

	// SQLitePath is the database file for the sqlite backend.
	// Empty uses the default under ~/.corpora/data.
	SQLitePath string `toml:"sqlite_path"`

	// TableName is the postgres chunk table.
	TableName string `toml:"table_name"`

	// Scope is the tenant filter stamped on every row.
	Scope map[string]string `toml:"scope"`

	// EmbeddingProfileID selects the embedding profile.
	EmbeddingProfileID int `toml:"embedding_profile_id"`

	// VersionField names the metadata field carrying document versions.
	VersionField string `toml:"version_field"`

	// MetadataSchema declares the metadata fields stored per chunk.
	MetadataSchema map[string]SchemaField `toml:"metadata_schema"`

	RequiredColumnOverrides map[string]string `toml:"required_column_overrides"`
	MetadataColumnOverrides map[string]string `toml:"metadata_column_overrides"`

	// Ingestion tuning. Zero values keep the pipeline defaults.
	MaxBatchSize      int `toml:"max_batch_size"`
	MaxEmbeddingBatch int `toml:"max_embedding_batch"`
	MaxRetries        int `toml:"max_retries"`
	RetryDelayMS      int `toml:"retry_delay_ms"`
	ParallelLimit     int `toml:"parallel_limit"`

	Chunker ChunkerConfig `toml:"chunker"`
	OpenAI  OpenAIConfig  `toml:"openai"`
	Ollama  OllamaConfig  `toml:"ollama"`
	Source  SourceConfig  `toml:"source"`
}

// DatabaseConfig configures the postgres backend.
type DatabaseConfig struct {
	// ConnectionString is the postgres DSN. The CORPORA_DATABASE_URL
	// environment variable overrides it.
	ConnectionString string `toml:"connection_string"`

	MaxOpenConns    int `toml:"max_open_conns"`
	MaxIdleConns    int `toml:"max_idle_conns"`
	ConnMaxLifetime int `toml:"conn_max_lifetime_seconds"`
}

// SchemaField declares one metadata field.
type SchemaField struct {
	// Type is "string", "int", "float" or "bool".
	Type string `toml:"type"`

	Required bool `toml:"required"`
}

// ChunkerConfig tunes the line chunker. Zero values keep the defaults.
type ChunkerConfig struct {
	MaxLines int `toml:"max_lines"`
	Overlap  int `toml:"overlap"`
	MaxChars int `toml:"max_chars"`
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey is the API key. The OPENAI_API_KEY environment variable
	// overrides it.
	APIKey string `toml:"api_key"`

	BaseURL string `toml:"base_url"`
}

// OllamaConfig configures the Ollama embedding provider.
type OllamaConfig struct {
	BaseURL string `toml:"base_url"`
}

// SourceConfig selects and configures the document source.
type SourceConfig struct {
	// Type is "filesystem" or "github".
	Type string `toml:"type"`

	// Root is the directory for the filesystem source.
	Root string `toml:"root"`

	// Patterns are glob patterns files must match.
	Patterns []string `toml:"patterns"`

	// Owner, Repo and Branch configure the github source. The token is
	// read from the GITHUB_TOKEN environment variable.
	Owner  string `toml:"owner"`
	Repo   string `toml:"repo"`
	Branch string `toml:"branch"`

	// MaxFileSize caps file size in bytes.
	MaxFileSize int64 `toml:"max_file_size"`
}

// DefaultPath returns the default config file path, creating the config
// directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	dir := filepath.Join(home, ".corpora")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return filepath.Join(dir, DefaultFileName), nil
}

// Default returns a configuration with sensible local defaults.
func Default() *Config {
	return &Config{
		Storage:            StorageSQLite,
		EmbeddingProfileID: 1,
		VersionField:       "version",
		MetadataSchema: map[string]SchemaField{
			"path":    {Type: "string", Required: true},
			"version": {Type: "string", Required: true},
			"name":    {Type: "string"},
		},
		Source: SourceConfig{Type: SourceFilesystem, Root: "."},
	}
}

// Load reads the config file at path, or the default path when empty.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORPORA_DATABASE_URL"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
}

// Validate checks the parts of the configuration that can be judged
// without touching the network or the database.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageSQLite:
	default:
		return domain.E(domain.CodeConfiguration, "config.validate", nil,
			"storage", c.Storage, "reason", "unknown storage backend")
	}
	if c.Storage == StoragePostgres && c.TableName == "" {
		return domain.E(domain.CodeConfiguration, "config.validate", nil,
			"reason", "table_name is required for postgres storage")
	}
	if c.VersionField == "" {
		return domain.E(domain.CodeConfiguration, "config.validate", nil,
			"reason", "version_field is required")
	}
	switch c.Source.Type {
	case SourceFilesystem, SourceGitHub:
	default:
		return domain.E(domain.CodeConfiguration, "config.validate", nil,
			"source", c.Source.Type, "reason", "unknown source type")
	}
	if _, err := c.Schema(); err != nil {
		return err
	}
	return nil
}

// Schema converts the declared metadata schema to the domain form.
func (c *Config) Schema() (domain.Schema, error) {
	schema := make(domain.Schema, len(c.MetadataSchema))
	for name, field := range c.MetadataSchema {
		var ft domain.FieldType
		switch field.Type {
		case "string":
			ft = domain.FieldTypeString
		case "int":
			ft = domain.FieldTypeInt
		case "float":
			ft = domain.FieldTypeFloat
		case "bool":
			ft = domain.FieldTypeBool
		default:
			return nil, domain.E(domain.CodeConfiguration, "config.schema", nil,
				"field", name, "type", field.Type, "reason", "unknown field type")
		}
		schema[name] = domain.Field{Type: ft, Required: field.Required}
	}
	return schema, nil
}

// RetryDelay returns the configured retry delay, or zero to keep the
// pipeline default.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Save writes the configuration to path with restricted permissions.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	// Write with restricted permissions
	return os.WriteFile(path, data, 0600)
}

// SetAPIKey updates (or creates) the config file at path with a new
// OpenAI API key, preserving everything else in the file.
func SetAPIKey(path, key string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	cfg.OpenAI.APIKey = key
	return cfg.Save(path)
}
