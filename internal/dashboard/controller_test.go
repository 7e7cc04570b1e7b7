package dashboard

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ghostified/webhook-tracker-kati/internal/fetch"
	"github.com/Ghostified/webhook-tracker-kati/internal/filter"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

type fakeSource struct {
	mu          sync.Mutex
	collection  ticket.Collection
	fetchErr    error
	clearErr    error
	fetchCalls  int
	clearCalls  int
	clearedWith string
}

func (f *fakeSource) FetchTickets(ctx context.Context, clientID string) (ticket.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.collection, nil
}

func (f *fakeSource) Clear(ctx context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.clearedWith = clientID
	if f.clearErr != nil {
		return f.clearErr
	}
	f.collection = ticket.Collection{}
	return nil
}

type fakeSurface struct {
	mu     sync.Mutex
	views  []render.ViewModel
	stats  []render.Stats
}

func (s *fakeSurface) Paint(vm render.ViewModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, vm)
}

func (s *fakeSurface) SetStats(stats render.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stats)
}

func (s *fakeSurface) lastView() render.ViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[len(s.views)-1]
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func scenario() ticket.Collection {
	return ticket.Collection{
		"A": {ID: "A", Step: "draft", ReceivedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), HasReceivedAt: true},
		"B": {ID: "B", Step: "done", ReceivedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), HasReceivedAt: true,
			Changes: map[string]any{"first_received": true}},
	}
}

func newTestController(src TicketSource, surface Surface, n Notifier) *Controller {
	return NewController(src, surface, n, Options{
		ClientID: "usr_test",
		Interval: time.Hour,
		Location: time.UTC,
		Logger:   log.New(io.Discard, "", 0),
	})
}

func cardIDs(vm render.ViewModel) []string {
	var out []string
	for _, c := range vm.Cards {
		out = append(out, c.ID)
	}
	return out
}

func TestRefreshScenario(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	surface := &fakeSurface{}
	n := &fakeNotifier{}
	c := newTestController(src, surface, n)

	require.NoError(t, c.Refresh(context.Background()))

	vm := surface.lastView()
	assert.Equal(t, render.StateTickets, vm.State)
	assert.Equal(t, []string{"B", "A"}, cardIDs(vm))

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.State.LastNewCount)
	assert.Equal(t, 0, snap.State.LastUpdatedCount)
	assert.Equal(t, 2, snap.Stats.Total)
	assert.Equal(t, 1, snap.Stats.New)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, []string{"New ticket received (1 total)"}, n.all())

	// Polling again with the same data must not notify twice.
	require.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, n.all(), 1)
}

func TestApplyFiltersStep(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	surface := &fakeSurface{}
	c := newTestController(src, surface, &fakeNotifier{})

	require.NoError(t, c.ApplyFilters(context.Background(), filter.Input{Step: "done"}))
	assert.Equal(t, []string{"B"}, cardIDs(surface.lastView()))
	assert.Equal(t, 1, src.fetchCalls)

	// Local refilter does not fetch.
	require.NoError(t, c.SetCriteria(filter.Criteria{Step: "nothing"}))
	assert.Equal(t, render.StateNoMatches, surface.lastView().State)
	assert.Equal(t, 1, src.fetchCalls)

	require.NoError(t, c.ResetFilters(context.Background()))
	assert.Equal(t, []string{"B", "A"}, cardIDs(surface.lastView()))
}

func TestApplyFiltersRejectsBadInput(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	c := newTestController(src, &fakeSurface{}, &fakeNotifier{})

	err := c.ApplyFilters(context.Background(), filter.Input{FromDate: "yesterday"})
	assert.Error(t, err)
	assert.Equal(t, 0, src.fetchCalls)
	assert.True(t, c.Snapshot().Criteria.IsEmpty())
}

func TestRefreshFailureKeepsStats(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	surface := &fakeSurface{}
	n := &fakeNotifier{}
	c := newTestController(src, surface, n)

	require.NoError(t, c.Refresh(context.Background()))
	before := c.Snapshot()

	src.mu.Lock()
	src.fetchErr = &fetch.FetchError{Kind: fetch.KindStatus, Status: 500}
	src.collection = ticket.Collection{
		"C": {ID: "C", Changes: map[string]any{"first_received": true}},
		"D": {ID: "D", Changes: map[string]any{"first_received": true}},
	}
	src.mu.Unlock()

	err := c.Refresh(context.Background())
	var fe *fetch.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 500, fe.Status)

	after := c.Snapshot()
	assert.Equal(t, before.Stats, after.Stats)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, render.StateFailed, surface.lastView().State)
	assert.Len(t, surface.stats, 1)
	assert.Len(t, n.all(), 1)
}

func TestClearDataOnEmptyCollection(t *testing.T) {
	src := &fakeSource{collection: ticket.Collection{}}
	surface := &fakeSurface{}
	n := &fakeNotifier{}
	c := newTestController(src, surface, n)

	require.NoError(t, c.ClearData(context.Background()))
	assert.Equal(t, 1, src.clearCalls)
	assert.Equal(t, "usr_test", src.clearedWith)
	assert.Equal(t, 1, src.fetchCalls)
	assert.Equal(t, render.StateNoneReceived, surface.lastView().State)
	assert.Equal(t, []string{ClearedMessage}, n.all())
}

func TestClearDataFailureStillRefreshes(t *testing.T) {
	src := &fakeSource{collection: scenario(), clearErr: &fetch.ClearError{Kind: fetch.KindTransport, Err: errors.New("refused")}}
	surface := &fakeSurface{}
	n := &fakeNotifier{}
	c := newTestController(src, surface, n)

	err := c.ClearData(context.Background())
	var ce *fetch.ClearError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, src.fetchCalls)
	assert.Equal(t, []string{"B", "A"}, cardIDs(surface.lastView()))
	assert.NotContains(t, n.all(), ClearedMessage)
}

func TestRefreshWithoutSurface(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	c := newTestController(src, nil, nil)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrRenderTargetMissing)
	assert.ErrorIs(t, c.SetCriteria(filter.Criteria{}), ErrRenderTargetMissing)
	assert.Equal(t, 0, src.fetchCalls)
}

// gatedSource holds the first fetch until the second one has been applied.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	first   ticket.Collection
	second  ticket.Collection
}

func (g *gatedSource) FetchTickets(ctx context.Context, clientID string) (ticket.Collection, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	if call == 1 {
		<-g.release
		return g.first, nil
	}
	return g.second, nil
}

func (g *gatedSource) Clear(ctx context.Context, clientID string) error { return nil }

func TestStaleResponseIsDiscarded(t *testing.T) {
	src := &gatedSource{
		release: make(chan struct{}),
		first:   ticket.Collection{"OLD": {ID: "OLD"}},
		second:  scenario(),
	}
	surface := &fakeSurface{}
	c := newTestController(src, surface, &fakeNotifier{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Refresh(context.Background()))
	close(src.release)

	assert.ErrorIs(t, <-errCh, ErrStaleResponse)
	assert.Equal(t, []string{"B", "A"}, cardIDs(surface.lastView()))
	assert.Equal(t, 2, c.Snapshot().Stats.Total)
}

func TestUpdatedHighlightIsCleared(t *testing.T) {
	src := &fakeSource{collection: ticket.Collection{
		"U": {ID: "U", Changes: map[string]any{"step": map[string]any{"old": "a", "new": "b"}}},
	}}
	surface := &fakeSurface{}
	c := newTestController(src, surface, &fakeNotifier{})

	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, surface.lastView().HasFlash())

	assert.Eventually(t, func() bool {
		return !surface.lastView().HasFlash()
	}, render.FlashDuration+time.Second, 20*time.Millisecond)
	assert.Equal(t, "updated", string(surface.lastView().Cards[0].Class))
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{collection: scenario()}
	c := NewController(src, &fakeSurface{}, &fakeNotifier{}, Options{
		ClientID: "usr_test",
		Interval: 10 * time.Millisecond,
		Logger:   log.New(io.Discard, "", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.fetchCalls >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
