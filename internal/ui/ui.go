package ui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Ghostified/webhook-tracker-kati/internal/filter"
	"github.com/Ghostified/webhook-tracker-kati/internal/render"
)

// Filter form labels.
const (
	labelStep     = "Step"
	labelID       = "Ticket ID"
	labelFromDate = "From date"
	labelFromTime = "From time"
	labelToDate   = "To date"
	labelToTime   = "To time"
)

const confirmPage = "confirm-clear"

// Actions are the dashboard operations the screen triggers.
type Actions interface {
	Refresh(ctx context.Context) error
	ApplyFilters(ctx context.Context, in filter.Input) error
	ResetFilters(ctx context.Context) error
	ClearData(ctx context.Context) error
}

// Options configures the terminal dashboard.
type Options struct {
	ClientID   string
	WebhookURL string
	Logger     *log.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// UI is the tview dashboard. It paints view models, shows toasts and maps
// keys and form buttons to dashboard actions.
type UI struct {
	app       *tview.Application
	pages     *tview.Pages
	layout    *tview.Flex
	header    *tview.TextView
	statsView *tview.TextView
	form      *tview.Form
	table     *tview.Table
	toast     *tview.TextView
	statusBar *tview.TextView

	actions Actions
	opts    Options
	logger  *log.Logger
	theme   Theme

	mu    sync.Mutex
	stats render.Stats
	view  render.ViewModel

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewUI builds the screen. Nothing is drawn until Start.
func NewUI(ctx context.Context, actions Actions, opts Options) *UI {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:     tview.NewApplication(),
		actions: actions,
		opts:    opts,
		logger:  opts.Logger,
		ctx:     uiCtx,
		cancel:  cancel,
	}
	if detectTrueColor() {
		ui.theme = themeNeon()
	} else {
		ui.theme = themeBasic()
	}

	ui.setupLayout()
	ui.app.SetInputCapture(ui.handleKey)
	return ui
}

// Start runs the TUI until ctx is done or the user quits.
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")

	// Handle context cancellation for both external and internal contexts
	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.startRedrawHeartbeat()

	ui.running.Store(true)
	err := ui.app.SetRoot(ui.pages, true).SetFocus(ui.table).Run()
	ui.running.Store(false)
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	ui.cancel()
}

// Done is closed once the screen has been stopped.
func (ui *UI) Done() <-chan struct{} {
	return ui.ctx.Done()
}

func (ui *UI) setupLayout() {
	ui.header = tview.NewTextView().SetDynamicColors(true)
	ui.header.SetText(fmt.Sprintf(" [%s::b]Ticket Webhook Tracker[-:-:-]  [%s]Client ID:[-] %s\n [%s]Webhook URL:[-] %s",
		ui.theme.TagAccent, ui.theme.TagMuted, tview.Escape(ui.opts.ClientID),
		ui.theme.TagMuted, tview.Escape(ui.opts.WebhookURL)))

	ui.statsView = tview.NewTextView().SetDynamicColors(true)
	ui.statsView.SetBorder(true)
	ui.statsView.SetTitle(" Stats ")
	ui.statsView.SetTitleAlign(tview.AlignLeft)

	ui.form = tview.NewForm().
		AddInputField(labelStep, "", 20, nil, nil).
		AddInputField(labelID, "", 20, nil, nil).
		AddInputField(labelFromDate, "", 12, nil, nil).
		AddInputField(labelFromTime, "", 8, nil, nil).
		AddInputField(labelToDate, "", 12, nil, nil).
		AddInputField(labelToTime, "", 8, nil, nil).
		AddButton("Apply", ui.applyFilters).
		AddButton("Clear filters", ui.resetFilters)
	ui.form.SetBorder(true)
	ui.form.SetTitle(" Filters (YYYY-MM-DD, HH:MM) ")
	ui.form.SetTitleAlign(tview.AlignLeft)
	ui.form.SetCancelFunc(func() { ui.app.SetFocus(ui.table) })

	ui.table = tview.NewTable()
	ui.table.SetBorder(true)
	ui.table.SetTitle(" Tickets ")
	ui.table.SetTitleAlign(tview.AlignLeft)
	ui.table.SetSelectable(true, false)
	// Pin header row so it stays visible when selecting/scrolling.
	ui.table.SetFixed(1, 0)

	ui.toast = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)

	ui.statusBar = tview.NewTextView().SetDynamicColors(true)
	ui.statusBar.SetText(ui.shortcutHints())

	body := tview.NewFlex().
		AddItem(ui.form, 44, 0, false).
		AddItem(ui.table, 0, 1, true)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.header, 2, 0, false).
		AddItem(ui.statsView, 3, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.toast, 1, 0, false).
		AddItem(ui.statusBar, 1, 0, false)

	ui.pages = tview.NewPages().AddPage("main", ui.layout, true, true)

	ui.applyTheme()
	ui.drawStats()
	ui.drawTable(render.ViewModel{State: render.StateNoneReceived, Message: "Loading..."})
}

func (ui *UI) applyTheme() {
	for _, box := range []*tview.Box{ui.statsView.Box, ui.form.Box, ui.table.Box} {
		box.SetBackgroundColor(ui.theme.Surface)
		box.SetBorderColor(ui.theme.Border)
		box.SetTitleColor(ui.theme.Accent)
	}
	ui.form.SetFieldBackgroundColor(ui.theme.SelectionBg)
	ui.form.SetFieldTextColor(ui.theme.TextPrimary)
	ui.form.SetLabelColor(ui.theme.TextMuted)
	ui.form.SetButtonBackgroundColor(ui.theme.SelectionBg)
	ui.form.SetButtonTextColor(ui.theme.SelectionFg)
	ui.table.SetSelectedStyle(tcell.StyleDefault.Background(ui.theme.SelectionBg).Foreground(ui.theme.SelectionFg))
	ui.header.SetBackgroundColor(ui.theme.Bg)
	ui.toast.SetBackgroundColor(ui.theme.Bg)
	ui.statusBar.SetBackgroundColor(ui.theme.Bg)
}

// update runs f on the UI goroutine when the app is running, directly otherwise
// (e.g. in unit tests). Never call it from an input handler.
func (ui *UI) update(f func()) {
	if ui.running.Load() {
		ui.app.QueueUpdateDraw(f)
		return
	}
	f()
}

// Paint implements the dashboard surface.
func (ui *UI) Paint(vm render.ViewModel) {
	ui.mu.Lock()
	ui.view = vm
	ui.mu.Unlock()
	ui.update(func() { ui.drawTable(vm) })
}

// SetStats implements the dashboard surface.
func (ui *UI) SetStats(stats render.Stats) {
	ui.mu.Lock()
	ui.stats = stats
	ui.mu.Unlock()
	ui.update(ui.drawStats)
}

// Show displays a toast message.
func (ui *UI) Show(message string) {
	ui.update(func() {
		ui.toast.SetText(fmt.Sprintf("[%s::b] %s [-:-:-]", ui.theme.TagAccent, tview.Escape(message)))
	})
}

// Hide clears the toast line.
func (ui *UI) Hide() {
	ui.update(func() { ui.toast.SetText("") })
}

func (ui *UI) drawStats() {
	ui.mu.Lock()
	stats := ui.stats
	ui.mu.Unlock()

	ui.statsView.SetText(fmt.Sprintf(" Total: [%s]%d[-]   New: [%s]%d[-]   Updated: [%s]%d[-]   [%s]%s[-]",
		ui.theme.TagTextPrimary, stats.Total,
		ui.theme.TagSuccess, stats.New,
		ui.theme.TagWarning, stats.Updated,
		ui.theme.TagMuted, render.LastUpdatedText(stats.LastUpdated, ui.opts.Now())))
}

var tableHeaders = []string{"ID", "Step", "Received", "Source", "Subject", "Tags"}

func (ui *UI) drawTable(vm render.ViewModel) {
	ui.table.Clear()
	for col, header := range tableHeaders {
		ui.table.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	if vm.State != render.StateTickets {
		color := ui.theme.TextMuted
		if vm.State == render.StateFailed {
			color = ui.theme.Error
		}
		ui.table.SetCell(1, 0, tview.NewTableCell(vm.Message).SetTextColor(color).SetSelectable(false))
		return
	}

	for i, c := range vm.Cards {
		fg := ui.theme.classColor(c.Class)
		bg := ui.theme.Surface
		if c.Flash {
			bg = ui.theme.FlashBg
		}
		values := []string{c.ID, c.Step, c.ReceivedAt, c.Source, c.EmailSubject, strings.Join(c.Tags, ", ")}
		for col, v := range values {
			cell := tview.NewTableCell(tview.Escape(v)).
				SetTextColor(fg).
				SetBackgroundColor(bg).
				SetMaxWidth(40)
			if col == 0 {
				cell.SetReference(c)
			}
			ui.table.SetCell(i+1, col, cell)
		}
	}
}

// filterInput reads the filter form.
func (ui *UI) filterInput() filter.Input {
	field := func(label string) string {
		if in, ok := ui.form.GetFormItemByLabel(label).(*tview.InputField); ok {
			return strings.TrimSpace(in.GetText())
		}
		return ""
	}
	return filter.Input{
		Step:     field(labelStep),
		ID:       field(labelID),
		FromDate: field(labelFromDate),
		FromTime: field(labelFromTime),
		ToDate:   field(labelToDate),
		ToTime:   field(labelToTime),
	}
}

func (ui *UI) clearFilterForm() {
	for _, label := range []string{labelStep, labelID, labelFromDate, labelFromTime, labelToDate, labelToTime} {
		if in, ok := ui.form.GetFormItemByLabel(label).(*tview.InputField); ok {
			in.SetText("")
		}
	}
}

func (ui *UI) applyFilters() {
	in := ui.filterInput()
	ui.run("Apply filters", func(ctx context.Context) error {
		return ui.actions.ApplyFilters(ctx, in)
	})
	ui.app.SetFocus(ui.table)
}

func (ui *UI) resetFilters() {
	ui.clearFilterForm()
	ui.run("Clear filters", ui.actions.ResetFilters)
	ui.app.SetFocus(ui.table)
}

// run executes a dashboard action off the UI goroutine so painting can queue draws.
func (ui *UI) run(name string, action func(ctx context.Context) error) {
	ui.setStatus("[%s]%s...[-]", ui.theme.TagWarning, name)
	go func() {
		if err := action(ui.ctx); err != nil {
			ui.logger.Printf("%s failed: %v", name, err)
			ui.update(func() {
				ui.setStatus("[%s]%s failed: %s[-]", ui.theme.TagError, name, tview.Escape(err.Error()))
			})
			return
		}
		ui.update(func() { ui.setStatus("[%s]%s done[-]", ui.theme.TagSuccess, name) })
	}()
}

func (ui *UI) setStatus(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	ui.statusBar.SetText(fmt.Sprintf("[%s]%s[-] %s [%s]|[-] %s",
		ui.theme.TagMuted, ui.opts.Now().Format("15:04:05"), message, ui.theme.TagMuted, ui.shortcutHints()))
}

func (ui *UI) shortcutHints() string {
	k := ui.theme.TagSuccess
	return fmt.Sprintf("[%s]r[-]:refresh [%s]f[-]:filters [%s]Esc[-]:tickets [%s]X[-]:clear all [%s]q[-]:quit", k, k, k, k, k)
}

// isDialogActive returns true when text entry or a modal has focus, so plain
// letters are not treated as shortcuts.
func (ui *UI) isDialogActive() bool {
	if ui.pages.HasPage(confirmPage) {
		return true
	}
	switch ui.app.GetFocus().(type) {
	case *tview.InputField, *tview.Button, *tview.Form, *tview.Modal:
		return true
	default:
		return false
	}
}

func (ui *UI) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if ui.isDialogActive() {
		return ev
	}
	switch ev.Key() {
	case tcell.KeyCtrlC:
		ui.Stop()
		return nil
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			ui.Stop()
			return nil
		case 'r':
			ui.run("Refresh", ui.actions.Refresh)
			return nil
		case 'f':
			ui.app.SetFocus(ui.form)
			return nil
		case 'X':
			ui.confirmClear()
			return nil
		}
	}
	return ev
}

// confirmClear asks before deleting every ticket on the backend.
func (ui *UI) confirmClear() {
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete every ticket for %s?\nThis cannot be undone.", ui.opts.ClientID)).
		AddButtons([]string{"Clear all", "Cancel"})
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		ui.pages.RemovePage(confirmPage)
		ui.app.SetFocus(ui.table)
		if buttonLabel == "Clear all" {
			ui.run("Clear all data", ui.actions.ClearData)
		}
	})
	ui.pages.AddPage(confirmPage, modal, true, true)
	ui.app.SetFocus(modal)
}

// startRedrawHeartbeat keeps the relative "last updated" text current.
func (ui *UI) startRedrawHeartbeat() {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ui.ctx.Done():
				return
			case <-ticker.C:
				if ui.running.Load() {
					ui.app.QueueUpdateDraw(ui.drawStats)
				}
			}
		}
	}()
}
