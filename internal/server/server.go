package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ghostified/webhook-tracker-kati/internal/bus"
	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

// DefaultUser receives deliveries posted to /webhook without a user segment.
const DefaultUser = "default"

// TicketStore is the tracking backend the HTTP API serves.
type TicketStore interface {
	Receive(ctx context.Context, userID string, payload map[string]any) (tracker.Result, error)
	All(ctx context.Context, userID string) (map[string]map[string]any, error)
	Get(ctx context.Context, userID, ticketID string) (map[string]any, error)
	Count(ctx context.Context, userID string) (int, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

// Options controls the HTTP server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:3000"
	Bind string
	// Token for Authorization: Bearer <token> header on webhook routes. Empty disables auth.
	Token string
	// RPS is max webhook requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// MaxBodyBytes caps request body size; defaults to 1 MiB.
	MaxBodyBytes int64
	// Debug logs every request.
	Debug  bool
	Logger *log.Logger
}

// Server is the webhook receiver and ticket API.
type Server struct {
	srv     *http.Server
	opts    Options
	tickets TicketStore
	bus     bus.Bus
	limiter *simpleLimiter
	logger  *log.Logger
	started int32

	mu   sync.Mutex
	addr string
}

// New constructs the server. b may be nil.
func New(tickets TicketStore, b bus.Bus, opts Options) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:3000"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[serve] ", log.LstdFlags)
	}
	if b == nil {
		b = bus.NewNullBus(logger)
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}

	s := &Server{
		opts:    opts,
		tickets: tickets,
		bus:     b,
		limiter: lim,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/", s.home)
	r.Get("/healthz", s.healthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)
		r.Post("/webhook", s.receiveWebhook)
		r.Post("/webhook/{userID}", s.receiveWebhook)
	})

	r.Get("/tickets/{userID}", s.listTickets)
	r.Get("/tickets/{userID}/{ticketID}", s.getTicket)
	r.Post("/clear/{userID}", s.clearTickets)
	return r
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return s.opts.Bind
}

// Start starts the HTTP server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Bind, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Printf("Tracker listening on http://%s rps=%d burst=%d auth=%v",
		s.Addr(), s.opts.RPS, s.opts.Burst, s.opts.Token != "")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		s.Close()
	}()
	return nil
}

// Close releases the rate limiter. Start calls it on shutdown.
func (s *Server) Close() {
	s.limiter.Close()
}
