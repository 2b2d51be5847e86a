// Package cli provides the cobra command surface for corpora.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpora-dev/corpora/internal/adapters/driven/config/file"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/core/ports/driving"
	"github.com/corpora-dev/corpora/internal/logger"
)

var (
	version = "dev"

	cfgPath string
	verbose bool

	newServices ServiceFactory
)

// WatchFunc observes the configured source for changes.
type WatchFunc func(ctx context.Context, debounce time.Duration) (<-chan struct{}, <-chan error, error)

// Services are the wired application dependencies the commands drive.
type Services struct {
	Searcher driving.Searcher
	Ingestor driving.Ingestor
	Store    driven.ChunkStore

	// Watch is nil when the configured source cannot be watched.
	Watch WatchFunc

	// Close releases the services' resources.
	Close func() error
}

// ServiceFactory builds the application services from loaded configuration.
type ServiceFactory func(ctx context.Context, cfg *file.Config) (*Services, error)

var rootCmd = &cobra.Command{
	Use:   "corpora",
	Short: "Ingest documents and search them by semantic similarity",
	Long: `corpora chunks documents from a filesystem or GitHub source, embeds
the chunks and stores them for similarity search. Re-ingestion is
differential: unchanged documents are skipped by version.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.corpora/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command with the given version string and service
// factory. The context cancels long-running commands such as watch.
func Execute(ctx context.Context, v string, factory ServiceFactory) error {
	version = v
	newServices = factory
	return rootCmd.ExecuteContext(ctx)
}

// loadServices loads the configuration and builds the services.
func loadServices(ctx context.Context) (*Services, *file.Config, error) {
	cfg, err := file.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if newServices == nil {
		return nil, nil, fmt.Errorf("services not configured")
	}
	svcs, err := newServices(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svcs, cfg, nil
}

func closeServices(svcs *Services) {
	if svcs.Close == nil {
		return
	}
	if err := svcs.Close(); err != nil {
		logger.Warn("Closing services: %v", err)
	}
}
