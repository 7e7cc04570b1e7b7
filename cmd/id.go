package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ghostified/webhook-tracker-kati/internal/identity"
)

// idCmd prints the client id and the webhook URL to configure upstream.
var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Show this client's id and webhook URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		logger := newLogger(os.Stderr, "[id] ", cfg.Log, true)

		clientID := resolveClientID(cmd.Context(), cfg, logger)
		if clientID == "" {
			return fmt.Errorf("failed to resolve client id")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Client ID:   %s\n", clientID)
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook URL: %s\n", identity.WebhookURL(cfg.Server.URL, clientID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
	addClientFlags(idCmd)
}
