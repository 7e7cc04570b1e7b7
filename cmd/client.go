package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/Ghostified/webhook-tracker-kati/internal/fetch"
	"github.com/Ghostified/webhook-tracker-kati/internal/identity"
	"github.com/Ghostified/webhook-tracker-kati/internal/store"
)

// clientIDOverride replaces the persisted client id when set.
var clientIDOverride string

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientIDOverride, "client-id", "", "Use this client id instead of the persisted one")
}

// resolveClientID returns the dashboard's client id. The id is persisted in
// the settings table; when the database cannot be opened it is ephemeral.
func resolveClientID(ctx context.Context, cfg Config, logger *log.Logger) string {
	if clientIDOverride != "" {
		return clientIDOverride
	}

	path := resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path)
	st, err := store.NewStore(path)
	if err != nil {
		logger.Printf("Warning: failed to open settings at %s: %v", path, err)
		return identity.NewProvider(nil, logger).GetOrCreateClientID(ctx)
	}
	defer st.Close()

	return identity.NewProvider(st.Settings(), logger).GetOrCreateClientID(ctx)
}

func newFetchClient(cfg Config, logger *log.Logger) *fetch.Client {
	return fetch.NewClient(fetch.Options{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.Fetch.Timeout,
		Logger:  logger,
	})
}
