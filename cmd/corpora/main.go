package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/corpora-dev/corpora/internal/adapters/driven/config/file"
	"github.com/corpora-dev/corpora/internal/adapters/driven/embedding/ollama"
	"github.com/corpora-dev/corpora/internal/adapters/driven/embedding/openai"
	"github.com/corpora-dev/corpora/internal/adapters/driven/loader/filesystem"
	"github.com/corpora-dev/corpora/internal/adapters/driven/loader/github"
	"github.com/corpora-dev/corpora/internal/adapters/driven/storage/postgres"
	"github.com/corpora-dev/corpora/internal/adapters/driven/storage/sqlite"
	"github.com/corpora-dev/corpora/internal/adapters/driving/cli"
	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/core/services"
	"github.com/corpora-dev/corpora/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version, buildServices); err != nil {
		os.Exit(1)
	}
}

// buildServices assembles the application from configuration: embedding
// provider, chunk store, document loader, ingest pipeline and query service.
func buildServices(_ context.Context, cfg *file.Config) (*cli.Services, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}

	registry, err := domain.NewProfileRegistry(domain.DefaultProfiles)
	if err != nil {
		return nil, err
	}
	profile, err := registry.Get(cfg.EmbeddingProfileID)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg, profile)
	if err != nil {
		return nil, err
	}

	embedder, err := services.NewEmbedder(registry, cfg.EmbeddingProfileID, provider)
	if err != nil {
		provider.Close()
		return nil, err
	}

	store, pools, err := buildStore(cfg, schema)
	if err != nil {
		provider.Close()
		return nil, err
	}

	closeAll := func() error {
		var first error
		if err := store.Close(); err != nil {
			first = err
		}
		if err := provider.Close(); err != nil && first == nil {
			first = err
		}
		if pools != nil {
			if err := pools.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	loader, watch, err := buildLoader(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	chk, err := buildChunker(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	pipeline, err := services.NewIngestPipeline(
		loader, chk, embedder, store,
		services.MetadataField(filesystem.FieldPath),
		services.MetadataField(cfg.VersionField),
		pipelineOptions(cfg)...,
	)
	if err != nil {
		closeAll()
		return nil, err
	}

	query, err := services.NewQueryService(embedder, store)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &cli.Services{
		Searcher: query,
		Ingestor: pipeline,
		Store:    store,
		Watch:    watch,
		Close:    closeAll,
	}, nil
}

func buildProvider(cfg *file.Config, profile domain.EmbeddingProfile) (driven.EmbeddingProvider, error) {
	switch profile.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      profile.Model,
			Dimensions: profile.Dimensions,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   profile.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", profile.Provider)
	}
}

func buildStore(cfg *file.Config, schema domain.Schema) (driven.ChunkStore, *postgres.PoolRegistry, error) {
	switch cfg.Storage {
	case file.StoragePostgres:
		pools := postgres.NewPoolRegistry()
		db, err := pools.Acquire(cfg.Database.ConnectionString, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.New(postgres.Config{
			DB:              db,
			Table:           cfg.TableName,
			Schema:          schema,
			Scope:           domain.Scope(cfg.Scope),
			ProfileID:       cfg.EmbeddingProfileID,
			VersionField:    cfg.VersionField,
			RequiredColumns: requiredColumns(cfg.RequiredColumnOverrides),
			MetadataColumns: cfg.MetadataColumnOverrides,
			MaxBatchSize:    cfg.MaxBatchSize,
		})
		if err != nil {
			pools.Close()
			return nil, nil, err
		}
		return store, pools, nil

	case file.StorageSQLite:
		store, err := sqlite.New(sqlite.Config{
			Path:         cfg.SQLitePath,
			Schema:       schema,
			Scope:        domain.Scope(cfg.Scope),
			ProfileID:    cfg.EmbeddingProfileID,
			VersionField: cfg.VersionField,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// requiredColumns maps the override keys from the config file onto the
// store's required column names.
func requiredColumns(overrides map[string]string) postgres.RequiredColumns {
	return postgres.RequiredColumns{
		DocumentKey:  overrides["document_key"],
		ChunkContent: overrides["chunk_content"],
		ChunkIndex:   overrides["chunk_index"],
		Embedding:    overrides["embedding"],
		Version:      overrides["version"],
	}
}

func buildLoader(cfg *file.Config) (driven.DocumentLoader, cli.WatchFunc, error) {
	switch cfg.Source.Type {
	case file.SourceFilesystem:
		loader, err := filesystem.New(filesystem.Config{
			Root:        cfg.Source.Root,
			Patterns:    cfg.Source.Patterns,
			MaxFileSize: cfg.Source.MaxFileSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return loader, loader.Watch, nil

	case file.SourceGitHub:
		loader, err := github.New(github.Config{
			Owner:       cfg.Source.Owner,
			Repo:        cfg.Source.Repo,
			Branch:      cfg.Source.Branch,
			Token:       os.Getenv("GITHUB_TOKEN"),
			Patterns:    cfg.Source.Patterns,
			MaxFileSize: cfg.Source.MaxFileSize,
		})
		if err != nil {
			return nil, nil, err
		}
		// The GitHub source is polled by re-running ingest; it cannot be watched.
		return loader, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

func buildChunker(cfg *file.Config) (*chunker.Chunker, error) {
	var opts []chunker.Option
	if cfg.Chunker.MaxLines > 0 {
		opts = append(opts, chunker.WithMaxLines(cfg.Chunker.MaxLines))
	}
	if cfg.Chunker.Overlap > 0 {
		opts = append(opts, chunker.WithOverlap(cfg.Chunker.Overlap))
	}
	if cfg.Chunker.MaxChars > 0 {
		opts = append(opts, chunker.WithMaxChars(cfg.Chunker.MaxChars))
	}
	return chunker.New(opts...)
}

func pipelineOptions(cfg *file.Config) []services.PipelineOption {
	var opts []services.PipelineOption
	if cfg.MaxEmbeddingBatch > 0 {
		opts = append(opts, services.WithMaxEmbeddingBatch(cfg.MaxEmbeddingBatch))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, services.WithMaxRetries(cfg.MaxRetries))
	}
	if d := cfg.RetryDelay(); d > 0 {
		opts = append(opts, services.WithRetryDelay(d))
	}
	if cfg.ParallelLimit > 0 {
		opts = append(opts, services.WithParallelLimit(cfg.ParallelLimit))
	}
	opts = append(opts, services.WithProgressCallback(func(p domain.Progress) {
		if p.DocumentKey != "" {
			logger.Debug("Processed %d: %s", p.Processed, p.DocumentKey)
		}
	}))
	return opts
}
