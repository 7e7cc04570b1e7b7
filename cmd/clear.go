package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var confirmClear bool

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every ticket stored for this client",
	Long: `Clear deletes all tickets the backend holds for this client's id.

WARNING: This operation is irreversible and will permanently delete all data.

Examples:
  # Clear with confirmation prompt
  tracker clear

  # Clear with automatic confirmation
  tracker clear --yes`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	addClientFlags(clearCmd)

	clearCmd.Flags().BoolVarP(&confirmClear, "yes", "y", false, "Automatically confirm the clear operation")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := newLogger(os.Stderr, "[clear] ", cfg.Log, true)
	out := cmd.OutOrStdout()

	clientID := resolveClientID(ctx, cfg, logger)
	fmt.Fprintf(out, "This will permanently delete all tickets for %s on %s\n", clientID, cfg.Server.URL)

	// Confirm operation unless --yes flag is used
	if !confirmClear {
		fmt.Fprint(out, "Are you sure you want to continue? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Clear operation cancelled.")
			return nil
		}
	}

	if err := newFetchClient(cfg, logger).Clear(ctx, clientID); err != nil {
		return fmt.Errorf("failed to clear tickets: %w", err)
	}
	fmt.Fprintln(out, "✓ All data cleared.")
	return nil
}
