package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List indexed documents and their versions",
	RunE:  runVersions,
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svcs, _, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svcs)

	if svcs.Store == nil {
		return errors.New("store not configured")
	}

	versions, err := svcs.Store.DocumentVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	if len(versions) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].DocumentKey < versions[j].DocumentKey
	})
	for _, dv := range versions {
		cmd.Printf("  %s  %s\n", dv.DocumentKey, dv.Version)
	}
	cmd.Printf("Total: %d documents\n", len(versions))
	return nil
}
