package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ghostified/webhook-tracker-kati/internal/changes"
	"github.com/Ghostified/webhook-tracker-kati/internal/filter"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the current tickets once",
	Long: `Fetch this client's tickets from the backend and print them in a simple
text format. This command works in any terminal environment and provides an
alternative to the dashboard when terminal capabilities are limited.

Examples:
  # List all tickets
  tracker list

  # Only tickets in a step received on a given day
  tracker list --step done --from-date 2024-05-01 --to-date 2024-05-01`,
	RunE: runList,
}

var listFilter filter.Input

func init() {
	rootCmd.AddCommand(listCmd)
	addClientFlags(listCmd)
	addFilterFlags(listCmd, &listFilter)
}

func addFilterFlags(cmd *cobra.Command, in *filter.Input) {
	cmd.Flags().StringVar(&in.Step, "step", "", "Only tickets whose step equals this value")
	cmd.Flags().StringVar(&in.ID, "id", "", "Only tickets whose id contains this text (case-insensitive)")
	cmd.Flags().StringVar(&in.FromDate, "from-date", "", "Received on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.FromTime, "from-time", "", "Time of day for --from-date (HH:MM)")
	cmd.Flags().StringVar(&in.ToDate, "to-date", "", "Received on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.ToTime, "to-time", "", "Time of day for --to-date (HH:MM)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := newLogger(os.Stderr, "[list] ", cfg.Log, true)

	criteria, err := filter.ParseCriteria(listFilter, time.Local)
	if err != nil {
		return fmt.Errorf("invalid filters: %w", err)
	}

	clientID := resolveClientID(ctx, cfg, logger)
	client := newFetchClient(cfg, logger)

	collection, err := client.FetchTickets(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to list tickets: %w", err)
	}

	vm := render.Render(len(collection), filter.Apply(collection, criteria))
	res := changes.Detect(&changes.RefreshState{ClientID: clientID}, collection)
	now := time.Now()
	stats := render.Stats{Total: res.Total, New: res.NewCount, Updated: res.UpdatedCount, LastUpdated: now}
	return render.WriteText(cmd.OutOrStdout(), vm, stats, now)
}
