package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ghostified/webhook-tracker-kati/internal/dashboard"
	"github.com/Ghostified/webhook-tracker-kati/internal/identity"
	"github.com/Ghostified/webhook-tracker-kati/internal/notify"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
	"github.com/Ghostified/webhook-tracker-kati/internal/ui"
)

var (
	noTUI    bool
	forceTUI bool
	interval time.Duration
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live ticket dashboard",
	Long: `Open the live dashboard for this client's tickets.

The dashboard polls the backend, highlights new and updated tickets, shows a
notification when new tickets or updates arrive, and lets you filter by step,
ticket id and received date.

Keys: r refresh, f filters, Esc back to tickets, X clear all data, q quit.

Examples:
  # Start with TUI (default)
  tracker watch

  # Print text snapshots instead of the TUI
  tracker watch --no-tui --interval 30s`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addClientFlags(watchCmd)

	watchCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print text snapshots instead of the TUI")
	watchCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even in unsupported terminals")
	watchCmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default refresh.interval, 10s)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cfg := GetConfig()

	useTUI := !noTUI && (forceTUI || canInitializeTUI())

	// Logs go to a file while the TUI owns the screen
	var logger *log.Logger
	if useTUI {
		logFile, logPath, err := openLogFile("tracker-ui.log")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not create UI log file at %s: %v\n", logPath, err)
			logger = log.New(io.Discard, "[dashboard] ", log.LstdFlags)
		} else {
			defer logFile.Close()
			logger = log.New(logFile, "[dashboard] ", log.LstdFlags)
		}
	} else {
		if !noTUI {
			fmt.Fprintf(os.Stderr, "TUI cannot be initialized (%s), printing text snapshots instead\n", getTerminalInfo())
		}
		logger = newLogger(os.Stderr, "[dashboard] ", cfg.Log, true)
	}

	clientID := resolveClientID(ctx, cfg, logger)
	webhookURL := identity.WebhookURL(cfg.Server.URL, clientID)
	logger.Printf("Client %s, webhook %s", clientID, webhookURL)

	every := interval
	if every <= 0 {
		every = cfg.Refresh.Interval
	}
	controller := dashboard.NewController(newFetchClient(cfg, logger), nil, nil, dashboard.Options{
		ClientID: clientID,
		Interval: every,
		Logger:   logger,
	})

	if !useTUI {
		return runTextDashboard(ctx, cmd.OutOrStdout(), controller, webhookURL, logger)
	}

	screen := ui.NewUI(ctx, controller, ui.Options{
		ClientID:   clientID,
		WebhookURL: webhookURL,
		Logger:     log.New(logger.Writer(), "[UI] ", log.LstdFlags),
	})
	notifier := notify.New(screen, notify.DefaultDuration, log.New(logger.Writer(), "[notify] ", log.LstdFlags))
	defer notifier.Close()
	controller.Attach(screen, notifier)

	go func() {
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Dashboard stopped: %v", err)
		}
	}()

	if err := screen.Start(ctx); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextDashboard paints every refresh as plain text.
func runTextDashboard(ctx context.Context, w io.Writer, controller *dashboard.Controller, webhookURL string, logger *log.Logger) error {
	fmt.Fprintf(w, "Webhook URL: %s\n\n", webhookURL)

	surface := &textSurface{w: w}
	notifier := notify.New(&textToast{w: w, mu: &surface.mu}, notify.DefaultDuration, logger)
	defer notifier.Close()
	controller.Attach(surface, notifier)

	err := controller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// textSurface writes each painted view to w. Repaints that only drop the
// updated-card highlight are skipped.
type textSurface struct {
	w       io.Writer
	mu      sync.Mutex
	stats   render.Stats
	printed *render.ViewModel
}

func (s *textSurface) SetStats(stats render.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *textSurface) Paint(vm render.ViewModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printed != nil && reflect.DeepEqual(render.ClearFlash(*s.printed), vm) {
		return
	}
	s.printed = &vm
	if err := render.WriteText(s.w, vm, s.stats, time.Now()); err != nil {
		return
	}
	fmt.Fprintln(s.w)
}

// textToast prints notifications inline with the snapshots.
type textToast struct {
	w  io.Writer
	mu *sync.Mutex
}

func (t *textToast) Show(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, ">> %s\n", message)
}

func (t *textToast) Hide() {}
