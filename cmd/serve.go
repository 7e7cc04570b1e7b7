package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ghostified/webhook-tracker-kati/internal/bus"
	"github.com/Ghostified/webhook-tracker-kati/internal/ingest"
	"github.com/Ghostified/webhook-tracker-kati/internal/server"
	"github.com/Ghostified/webhook-tracker-kati/internal/store"
	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and ticket API",
	Long: `Start the tracking backend which includes:

1. Webhook receiver (POST /webhook/{userID}) that records field-level changes
2. Ticket API polled by the dashboard (GET /tickets/{userID}, POST /clear/{userID})
3. Optional folder watcher that ingests dropped JSON files
4. Optional Redis stream publishing of every change

The serve command runs until interrupted (Ctrl+C) and shuts down gracefully.

Examples:
  # Start on the default address
  tracker serve

  # Require a bearer token and limit webhook traffic
  tracker serve --token s3cret --rps 10 --burst 20

  # Also ingest files dropped into data/incoming
  tracker serve --watch-dir data/incoming --watch-user usr_abc123xyz`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "127.0.0.1:3000", "Bind address for the HTTP server")
	serveCmd.Flags().String("token", "", "Bearer token required on webhook routes (optional)")
	serveCmd.Flags().Int("rps", 0, "Max webhook requests per second (0 disables limiting)")
	serveCmd.Flags().Int("burst", 0, "Burst size for the webhook rate limiter")
	serveCmd.Flags().String("watch-dir", "", "Directory to watch for ticket JSON files (optional)")
	serveCmd.Flags().String("watch-user", server.DefaultUser, "User id that folder-ingested tickets belong to")

	viper.BindPFlag("serve.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("serve.token", serveCmd.Flags().Lookup("token"))
	viper.BindPFlag("serve.rps", serveCmd.Flags().Lookup("rps"))
	viper.BindPFlag("serve.burst", serveCmd.Flags().Lookup("burst"))
	viper.BindPFlag("serve.watch_dir", serveCmd.Flags().Lookup("watch-dir"))
	viper.BindPFlag("serve.watch_user", serveCmd.Flags().Lookup("watch-user"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := newLogger(os.Stderr, "[serve] ", config.Log, false)

	logger.Println("Starting tracker backend")

	// Initialize store
	resolvedDBPath := resolvePathRelativeToBase(getWorkingDir(), config.Database.Path)
	logger.Printf("Using database at %s", resolvedDBPath)
	st, err := store.NewStore(resolvedDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	// Initialize bus (Redis or Null)
	eventBus := bus.NewBus(config.Redis.URL, logger)
	defer eventBus.Close()

	tr := tracker.New(st, eventBus, logger)

	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	srv := server.New(tr, eventBus, server.Options{
		Bind:   config.Serve.Bind,
		Token:  config.Serve.Token,
		RPS:    config.Serve.RPS,
		Burst:  config.Serve.Burst,
		Debug:  config.Log.Debug(),
		Logger: logger,
	})
	if err := srv.Start(svcCtx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Close()
	logger.Printf("Webhook URL: http://%s/webhook/{userID}", srv.Addr())

	coordinator := &ServiceCoordinator{
		store:   st,
		tracker: tr,
		bus:     eventBus,
		logger:  logger,
		ctx:     svcCtx,
	}
	if config.Serve.WatchDir != "" {
		coordinator.folder = ingest.NewFolderIngestor(tr, ingest.FolderOptions{
			Dir:    resolvePathRelativeToBase(getWorkingDir(), config.Serve.WatchDir),
			UserID: config.Serve.WatchUser,
			Watch:  true,
			Logger: logger,
		})
	}
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	<-ctx.Done()
	logger.Println("Received shutdown signal")
	svcCancel()
	coordinator.Stop()

	logger.Println("Tracker backend stopped")
	return nil
}

// ServiceCoordinator manages background services
type ServiceCoordinator struct {
	store   *store.Store
	tracker *tracker.Tracker
	bus     bus.Bus
	folder  *ingest.FolderIngestor
	logger  *log.Logger
	ctx     context.Context

	// Service state
	wg      sync.WaitGroup
	running bool
}

// Start starts all background services
func (sc *ServiceCoordinator) Start() error {
	if sc.running {
		return fmt.Errorf("services already running")
	}

	sc.running = true

	if sc.folder != nil {
		sc.wg.Add(1)
		go sc.runFolderIngestor()
	}

	sc.wg.Add(1)
	go sc.runHealthMonitor()

	sc.wg.Add(1)
	go sc.runMetricsCollector()

	sc.logger.Println("Background services started")
	return nil
}

// Stop waits for the background services to exit. sc.ctx must already be
// cancelled.
func (sc *ServiceCoordinator) Stop() {
	if !sc.running {
		return
	}

	sc.logger.Println("Stopping background services...")
	sc.running = false
	sc.wg.Wait()
	sc.logger.Println("Background services stopped")
}

func (sc *ServiceCoordinator) runFolderIngestor() {
	defer sc.wg.Done()

	if err := sc.folder.Run(sc.ctx); err != nil && sc.ctx.Err() == nil {
		sc.logger.Printf("Folder ingest error: %v", err)
	}
	stats := sc.folder.Stats()
	sc.logger.Printf("Folder ingest stopped: %d tickets from %d files, %d errors", stats.Ingested, stats.Files, stats.Errors)
}

// runHealthMonitor checks the database and bus periodically
func (sc *ServiceCoordinator) runHealthMonitor() {
	defer sc.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.performHealthChecks()
		}
	}
}

// runMetricsCollector logs ticket and bus counters
func (sc *ServiceCoordinator) runMetricsCollector() {
	defer sc.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.collectMetrics()
		}
	}
}

func (sc *ServiceCoordinator) performHealthChecks() {
	ctx, cancel := context.WithTimeout(sc.ctx, 10*time.Second)
	defer cancel()

	if err := sc.store.Ping(ctx); err != nil {
		sc.logger.Printf("Database health check failed: %v", err)
	}
	if err := sc.bus.HealthCheck(ctx); err != nil {
		sc.logger.Printf("Bus health check failed: %v", err)
	}
}

func (sc *ServiceCoordinator) collectMetrics() {
	ctx, cancel := context.WithTimeout(sc.ctx, 10*time.Second)
	defer cancel()

	busStats, err := sc.bus.GetStats(ctx)
	if err != nil {
		sc.logger.Printf("Failed to get bus stats: %v", err)
	} else {
		sc.logger.Printf("Bus stats: %+v", busStats)
	}

	total, err := sc.tracker.Count(ctx, "")
	if err != nil {
		sc.logger.Printf("Failed to get ticket count: %v", err)
		return
	}
	sc.logger.Printf("Database stats: %d tickets", total)
}
