package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ghostified/webhook-tracker-kati/internal/bus"
	"github.com/Ghostified/webhook-tracker-kati/internal/ingest"
	"github.com/Ghostified/webhook-tracker-kati/internal/server"
	"github.com/Ghostified/webhook-tracker-kati/internal/store"
	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

var (
	folderDir      string
	folderWatch    bool
	folderUser     string
	folderPatterns string
)

// ingestFolderCmd represents the ingest-folder command
var ingestFolderCmd = &cobra.Command{
	Use:   "ingest-folder",
	Short: "Record ticket payloads from files in a directory (optionally watch for changes)",
	Long: `Feed ticket payloads from a directory into the local database, exactly as if
they had been posted to the webhook. Supports JSONL (one payload per line),
JSON arrays and single JSON objects. Handled files are moved to processed/.

Examples:
  # One-shot: ingest existing files and exit
  tracker ingest-folder --dir ./incoming

  # Watch mode: keep ingesting files as they appear
  tracker ingest-folder --dir ./incoming --watch

  # Attribute tickets to a client id and restrict patterns
  tracker ingest-folder --dir ./incoming --user usr_abc123xyz --pattern "*.jsonl"`,
	RunE: runIngestFolder,
}

func init() {
	rootCmd.AddCommand(ingestFolderCmd)

	ingestFolderCmd.Flags().StringVar(&folderDir, "dir", "", "Directory to read files from (required)")
	ingestFolderCmd.MarkFlagRequired("dir")

	ingestFolderCmd.Flags().BoolVar(&folderWatch, "watch", false, "Watch directory for new files")
	ingestFolderCmd.Flags().StringVar(&folderUser, "user", server.DefaultUser, "User id the tickets belong to")
	ingestFolderCmd.Flags().StringVar(&folderPatterns, "pattern", "*.jsonl,*.json", "Comma-separated glob patterns to match (e.g. \"*.jsonl,*.json\")")
}

func runIngestFolder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	logger := newLogger(os.Stderr, "[ingest-folder] ", cfg.Log, false)

	st, err := store.NewStore(resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	eventBus := bus.NewBus(cfg.Redis.URL, logger)
	defer eventBus.Close()

	var patterns []string
	for _, p := range strings.Split(folderPatterns, ",") {
		if s := strings.TrimSpace(p); s != "" {
			patterns = append(patterns, s)
		}
	}

	opts := ingest.FolderOptions{
		Dir:      folderDir,
		UserID:   folderUser,
		Watch:    folderWatch,
		Patterns: patterns,
		Logger:   logger,
	}

	logger.Printf("Starting ingest-folder dir=%s watch=%v user=%s patterns=%v", opts.Dir, opts.Watch, opts.UserID, opts.Patterns)

	ingestor := ingest.NewFolderIngestor(tracker.New(st, eventBus, logger), opts)
	if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingest-folder error: %w", err)
	}

	stats := ingestor.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d tickets from %d files (%d errors)\n", stats.Ingested, stats.Files, stats.Errors)
	return nil
}
