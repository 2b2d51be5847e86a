package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpora-dev/corpora/internal/core/ports/driving"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the configured source",
	Long: `Enumerates the configured source, chunks and embeds changed documents
and stores them. Documents whose version is unchanged are skipped;
documents removed from the source are deleted from the store.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svcs, _, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svcs)

	if svcs.Ingestor == nil {
		return errors.New("ingestor not configured")
	}

	return ingestOnce(ctx, cmd, svcs.Ingestor)
}

// ingestOnce runs one ingestion and prints its outcome.
func ingestOnce(ctx context.Context, cmd *cobra.Command, ingestor driving.Ingestor) error {
	cmd.Println("Ingesting...")

	result, err := ingestor.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Done: %d documents, %d succeeded, %d failed.\n",
		result.TotalDocuments, result.SuccessfulDocuments, result.FailedDocuments)

	for _, docErr := range result.Errors {
		cmd.Printf("  failed %s: %v\n", docErr.DocumentKey, docErr.Err)
	}
	if result.FailedDocuments > 0 {
		return fmt.Errorf("%d of %d documents failed", result.FailedDocuments, result.TotalDocuments)
	}
	return nil
}
