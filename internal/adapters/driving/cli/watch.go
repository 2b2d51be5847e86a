package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpora-dev/corpora/internal/logger"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source and re-ingest on change",
	Long: `Runs an initial ingestion, then watches the configured source and
re-ingests whenever files change. Only filesystem sources can be watched.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before re-ingesting (default 500ms)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svcs, _, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svcs)

	if svcs.Ingestor == nil {
		return errors.New("ingestor not configured")
	}
	if svcs.Watch == nil {
		return errors.New("the configured source cannot be watched")
	}

	// A failed initial run is reported but does not stop the watch; the
	// next change retries.
	if err := ingestOnce(ctx, cmd, svcs.Ingestor); err != nil {
		logger.Warn("Initial ingest: %v", err)
	}

	changed, errCh, err := svcs.Watch(ctx, watchDebounce)
	if err != nil {
		return err
	}

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changed:
			if !ok {
				return nil
			}
			if err := ingestOnce(ctx, cmd, svcs.Ingestor); err != nil {
				logger.Warn("Re-ingest: %v", err)
			}
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			return err
		}
	}
}
