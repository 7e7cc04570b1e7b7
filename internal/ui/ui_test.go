package ui

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Ghostified/webhook-tracker-kati/internal/filter"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

type fakeActions struct {
	mu      sync.Mutex
	refresh int
	applied int
	reset   int
	cleared int
	lastIn  filter.Input
}

func (f *fakeActions) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return nil
}

func (f *fakeActions) ApplyFilters(ctx context.Context, in filter.Input) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	f.lastIn = in
	return nil
}

func (f *fakeActions) ResetFilters(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset++
	return nil
}

func (f *fakeActions) ClearData(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeActions) counts() (int, int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh, f.applied, f.reset, f.cleared
}

func newTestUI(t *testing.T, actions Actions) *UI {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ui := NewUI(context.Background(), actions, Options{
		ClientID:   "usr_abc123def",
		WebhookURL: "http://127.0.0.1:3000/webhook/usr_abc123def",
		Logger:     log.New(io.Discard, "", 0),
		Now:        func() time.Time { return now },
	})
	t.Cleanup(ui.Stop)
	return ui
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestNewUIShowsIdentity(t *testing.T) {
	ui := newTestUI(t, &fakeActions{})

	header := ui.header.GetText(true)
	if !strings.Contains(header, "usr_abc123def") {
		t.Errorf("header should show the client id, got %q", header)
	}
	if !strings.Contains(header, "/webhook/usr_abc123def") {
		t.Errorf("header should show the webhook URL, got %q", header)
	}
}

func TestPaintTickets(t *testing.T) {
	ui := newTestUI(t, &fakeActions{})

	ui.Paint(render.ViewModel{State: render.StateTickets, Cards: []render.Card{
		{ID: "B", Step: "done", Class: ticket.ClassNew, Source: "crm", EmailSubject: "Help", Tags: []string{"a", "b"}},
		{ID: "A", Step: "draft", Class: ticket.ClassUpdated, Flash: true, Source: "N/A", EmailSubject: "No subject"},
	}})

	if got := ui.table.GetRowCount(); got != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", got)
	}
	if got := ui.table.GetCell(1, 0).Text; got != "B" {
		t.Errorf("first row should be B, got %q", got)
	}
	if got := ui.table.GetCell(1, 5).Text; got != "a, b" {
		t.Errorf("tags cell = %q", got)
	}
	if ui.table.GetCell(1, 0).Color != ui.theme.Success {
		t.Error("new tickets should use the success color")
	}
	if ui.table.GetCell(2, 0).BackgroundColor != ui.theme.FlashBg {
		t.Error("flashing rows should be highlighted")
	}

	ui.Paint(render.ClearFlash(ui.view))
	if ui.table.GetCell(2, 0).BackgroundColor == ui.theme.FlashBg {
		t.Error("highlight should be cleared")
	}
}

func TestPaintPlaceholder(t *testing.T) {
	ui := newTestUI(t, &fakeActions{})

	ui.Paint(render.Failed())
	cell := ui.table.GetCell(1, 0)
	if cell.Text != render.MessageFailed {
		t.Errorf("expected failure message, got %q", cell.Text)
	}
	if cell.Color != ui.theme.Error {
		t.Error("failure message should use the error color")
	}

	ui.Paint(render.Render(0, nil))
	if got := ui.table.GetCell(1, 0).Text; got != render.MessageNoneReceived {
		t.Errorf("expected empty-state message, got %q", got)
	}
}

func TestStatsAndToast(t *testing.T) {
	ui := newTestUI(t, &fakeActions{})

	ui.SetStats(render.Stats{Total: 4, New: 1, Updated: 2, LastUpdated: ui.opts.Now().Add(-3 * time.Minute)})
	text := ui.statsView.GetText(true)
	for _, want := range []string{"Total: 4", "New: 1", "Updated: 2", "3 minutes ago"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats %q missing %q", text, want)
		}
	}

	ui.Show("New ticket received (4 total)")
	if got := ui.toast.GetText(true); !strings.Contains(got, "New ticket received (4 total)") {
		t.Errorf("toast = %q", got)
	}
	ui.Hide()
	if got := strings.TrimSpace(ui.toast.GetText(true)); got != "" {
		t.Errorf("toast should be empty, got %q", got)
	}
}

func TestFilterFormInput(t *testing.T) {
	actions := &fakeActions{}
	ui := newTestUI(t, actions)

	ui.form.GetFormItemByLabel(labelStep).(*tview.InputField).SetText(" done ")
	ui.form.GetFormItemByLabel(labelFromDate).(*tview.InputField).SetText("2024-01-01")
	ui.form.GetFormItemByLabel(labelToTime).(*tview.InputField).SetText("18:00")

	ui.applyFilters()
	waitFor(t, func() bool { _, applied, _, _ := actions.counts(); return applied == 1 })

	actions.mu.Lock()
	in := actions.lastIn
	actions.mu.Unlock()
	if in.Step != "done" || in.FromDate != "2024-01-01" || in.ToTime != "18:00" || in.ID != "" {
		t.Errorf("unexpected filter input %+v", in)
	}

	ui.resetFilters()
	waitFor(t, func() bool { _, _, reset, _ := actions.counts(); return reset == 1 })
	if got := ui.filterInput(); got != (filter.Input{}) {
		t.Errorf("form should be cleared, got %+v", got)
	}
}

func TestKeyBindings(t *testing.T) {
	actions := &fakeActions{}
	ui := newTestUI(t, actions)
	ui.app.SetFocus(ui.table)

	if ui.handleKey(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)) != nil {
		t.Error("r should be consumed")
	}
	waitFor(t, func() bool { refresh, _, _, _ := actions.counts(); return refresh == 1 })

	ui.handleKey(tcell.NewEventKey(tcell.KeyRune, 'X', tcell.ModNone))
	if !ui.pages.HasPage(confirmPage) {
		t.Fatal("X should open the confirmation dialog")
	}
	// Shortcuts are ignored while the dialog is open.
	if ui.handleKey(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)) == nil {
		t.Error("r should pass through while the dialog is open")
	}
	ui.pages.RemovePage(confirmPage)
	ui.app.SetFocus(ui.table)

	ui.handleKey(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	select {
	case <-ui.Done():
	case <-time.After(time.Second):
		t.Error("q should stop the UI")
	}
}
