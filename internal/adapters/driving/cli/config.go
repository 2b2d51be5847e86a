package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/corpora-dev/corpora/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the OpenAI API key",
	Long: `Prompts for the OpenAI API key without echo and stores it in the
config file with restricted permissions. The OPENAI_API_KEY environment
variable, when set, takes precedence over the stored key.`,
	RunE: runConfigSetKey,
}

func init() {
	configCmd.AddCommand(configSetKeyCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSetKey(cmd *cobra.Command, _ []string) error {
	cmd.Print("API key: ")
	key := readPassword()
	cmd.Println()

	if key == "" {
		return fmt.Errorf("no key entered")
	}

	if err := file.SetAPIKey(cfgPath, key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	cmd.Println("API key stored.")
	return nil
}

func readPassword() string {
	// Try to read password without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
