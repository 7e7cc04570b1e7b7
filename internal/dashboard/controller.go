package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Ghostified/webhook-tracker-kati/internal/changes"
	"github.com/Ghostified/webhook-tracker-kati/internal/filter"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// DefaultInterval is the polling period of the dashboard.
const DefaultInterval = 10 * time.Second

// ClearedMessage is shown after a successful clear.
const ClearedMessage = "All data cleared."

// ErrRenderTargetMissing is returned when no presentation surface is attached.
var ErrRenderTargetMissing = errors.New("render target missing")

// ErrStaleResponse marks a response that resolved after a newer one was applied.
var ErrStaleResponse = errors.New("stale response discarded")

// TicketSource is the backend the dashboard polls.
type TicketSource interface {
	FetchTickets(ctx context.Context, clientID string) (ticket.Collection, error)
	Clear(ctx context.Context, clientID string) error
}

// Surface receives rendered output.
type Surface interface {
	Paint(vm render.ViewModel)
	SetStats(stats render.Stats)
}

// Notifier shows transient messages.
type Notifier interface {
	Notify(message string)
}

// Options configures a Controller.
type Options struct {
	ClientID string
	Interval time.Duration
	Location *time.Location
	Logger   *log.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	State    changes.RefreshState
	Stats    render.Stats
	View     render.ViewModel
	Criteria filter.Criteria
	Phase    Phase
}

// Phase is the refresh lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
)

// Controller runs the poll / diff / filter / render cycle.
type Controller struct {
	source   TicketSource
	surface  Surface
	notifier Notifier
	interval time.Duration
	loc      *time.Location
	logger   *log.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      changes.RefreshState
	criteria   filter.Criteria
	last       ticket.Collection
	stats      render.Stats
	view       render.ViewModel
	issued     uint64
	applied    uint64
	inFlight   int
	viewGen    uint64
	flashTimer *time.Timer
}

// NewController wires a controller. surface and notifier may be attached later.
func NewController(source TicketSource, surface Surface, notifier Notifier, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[dashboard] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		source:   source,
		surface:  surface,
		notifier: notifier,
		interval: opts.Interval,
		loc:      opts.Location,
		logger:   opts.Logger,
		now:      opts.Now,
		state:    changes.RefreshState{ClientID: opts.ClientID},
	}
}

// Attach sets the presentation surface and notifier.
func (c *Controller) Attach(surface Surface, notifier Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = surface
	c.notifier = notifier
}

// ClientID returns the identifier the controller polls for.
func (c *Controller) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ClientID
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	phase := PhaseIdle
	if c.inFlight > 0 {
		phase = PhaseFetching
	}
	return Snapshot{State: c.state, Stats: c.stats, View: c.view, Criteria: c.criteria, Phase: phase}
}

// Run refreshes immediately and then on every interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Printf("Dashboard polling every %s for %s", c.interval, c.ClientID())
	_ = c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer c.stopFlash()

	for {
		select {
		case <-ctx.Done():
			c.logger.Println("Dashboard polling stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Refresh fetches the collection and repaints. Responses older than the last
// applied one are discarded. A failed fetch paints the failure view and
// leaves stats and change counters untouched.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.surface == nil {
		c.mu.Unlock()
		c.logger.Printf("Refresh aborted: %v", ErrRenderTargetMissing)
		return ErrRenderTargetMissing
	}
	c.issued++
	seq := c.issued
	c.inFlight++
	clientID := c.state.ClientID
	c.mu.Unlock()

	collection, err := c.source.FetchTickets(ctx, clientID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if seq < c.applied {
		c.logger.Printf("Discarding response #%d, #%d already applied", seq, c.applied)
		return ErrStaleResponse
	}
	c.applied = seq

	if err != nil {
		c.logger.Printf("Fetch error: %v", err)
		c.paintLocked(render.Failed())
		return fmt.Errorf("failed to refresh tickets: %w", err)
	}

	res := changes.Detect(&c.state, collection)
	c.last = collection
	c.stats = render.Stats{
		Total:       res.Total,
		New:         res.NewCount,
		Updated:     res.UpdatedCount,
		LastUpdated: c.now(),
	}
	c.surface.SetStats(c.stats)
	c.paintLocked(render.Render(len(collection), filter.Apply(collection, c.criteria)))

	if c.notifier != nil {
		for _, ev := range res.Events {
			c.notifier.Notify(ev.Message())
		}
	}
	return nil
}

// SetCriteria changes the filter and repaints from the last fetched
// collection without a new request.
func (c *Controller) SetCriteria(criteria filter.Criteria) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criteria = criteria
	if c.surface == nil {
		c.logger.Printf("Filter repaint aborted: %v", ErrRenderTargetMissing)
		return ErrRenderTargetMissing
	}
	if c.last == nil {
		return nil
	}
	c.paintLocked(render.Render(len(c.last), filter.Apply(c.last, c.criteria)))
	return nil
}

// ApplyFilters parses the filter fields, stores them and triggers a fresh fetch.
// Invalid input leaves the current criteria in place.
func (c *Controller) ApplyFilters(ctx context.Context, in filter.Input) error {
	criteria, err := filter.ParseCriteria(in, c.loc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.criteria = criteria
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// ResetFilters clears every filter and refreshes.
func (c *Controller) ResetFilters(ctx context.Context) error {
	c.mu.Lock()
	c.criteria = filter.Criteria{}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// ClearData deletes the client's tickets on the backend and then refreshes
// regardless of the outcome. A failed clear is logged and returned; local
// state is left as it was.
func (c *Controller) ClearData(ctx context.Context) error {
	clientID := c.ClientID()
	clearErr := c.source.Clear(ctx, clientID)
	if clearErr != nil {
		c.logger.Printf("Clear failed: %v", clearErr)
	} else {
		c.logger.Printf("Cleared all tickets for %s", clientID)
		c.mu.Lock()
		n := c.notifier
		c.mu.Unlock()
		if n != nil {
			n.Notify(ClearedMessage)
		}
	}

	if err := c.Refresh(ctx); err != nil && clearErr == nil {
		return err
	}
	return clearErr
}

// paintLocked paints vm and schedules removal of the updated-card highlight.
func (c *Controller) paintLocked(vm render.ViewModel) {
	c.viewGen++
	c.view = vm
	c.surface.Paint(vm)

	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
	if !vm.HasFlash() {
		return
	}
	gen := c.viewGen
	c.flashTimer = time.AfterFunc(render.FlashDuration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.viewGen || c.surface == nil {
			return
		}
		c.view = render.ClearFlash(c.view)
		c.surface.Paint(c.view)
	})
}

func (c *Controller) stopFlash() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
}
