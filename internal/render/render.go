package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// FlashDuration is how long an updated card stays highlighted.
const FlashDuration = 2 * time.Second

// State distinguishes what the ticket area shows.
type State int

const (
	StateTickets State = iota
	StateNoMatches
	StateNoneReceived
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateTickets:
		return "tickets"
	case StateNoMatches:
		return "no-matches"
	case StateNoneReceived:
		return "none-received"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	MessageNoMatches    = "No tickets match the filters."
	MessageNoneReceived = "No tickets received yet."
	MessageFailed       = "Failed to load data."
)

// Card is the display form of one ticket.
type Card struct {
	ID        string
	Step      string
	StepClass string
	Class     ticket.Class
	// Flash marks a transient highlight for updated tickets.
	Flash        bool
	ReceivedAt   string
	Tags         []string
	Source       string
	EmailSubject string
}

// ViewModel is everything the ticket area needs to paint itself.
type ViewModel struct {
	State   State
	Message string
	Cards   []Card
}

// HasFlash reports whether any card is highlighted.
func (vm ViewModel) HasFlash() bool {
	for _, c := range vm.Cards {
		if c.Flash {
			return true
		}
	}
	return false
}

// Stats are the counters shown above the ticket area.
type Stats struct {
	Total       int
	New         int
	Updated     int
	LastUpdated time.Time
}

// Render builds the view for an already filtered and ordered list.
// total is the size of the collection before filtering.
func Render(total int, list []ticket.Ticket) ViewModel {
	if total == 0 {
		return ViewModel{State: StateNoneReceived, Message: MessageNoneReceived}
	}
	if len(list) == 0 {
		return ViewModel{State: StateNoMatches, Message: MessageNoMatches}
	}

	cards := make([]Card, 0, len(list))
	for _, t := range list {
		cards = append(cards, card(t))
	}
	return ViewModel{State: StateTickets, Cards: cards}
}

// Failed is the view shown in place of tickets when a fetch fails.
func Failed() ViewModel {
	return ViewModel{State: StateFailed, Message: MessageFailed}
}

// ClearFlash returns a copy of vm with every highlight removed.
func ClearFlash(vm ViewModel) ViewModel {
	if !vm.HasFlash() {
		return vm
	}
	cards := make([]Card, len(vm.Cards))
	copy(cards, vm.Cards)
	for i := range cards {
		cards[i].Flash = false
	}
	vm.Cards = cards
	return vm
}

func card(t ticket.Ticket) Card {
	class := ticket.Classify(t)
	c := Card{
		ID:           t.ID,
		Step:         t.Step,
		Class:        class,
		Flash:        class == ticket.ClassUpdated,
		Source:       orDefault(t.Module, "N/A"),
		EmailSubject: orDefault(t.EmailSubject, "No subject"),
	}
	if t.Step != "" {
		c.StepClass = "step-" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t.Step), " ", "-"))
	}
	if len(t.Tags) > 0 {
		c.Tags = append([]string(nil), t.Tags...)
	}
	switch {
	case t.HasReceivedAt:
		c.ReceivedAt = t.ReceivedAt.Local().Format("2006-01-02 15:04:05")
	case t.RawReceivedAt != "":
		c.ReceivedAt = t.RawReceivedAt
	default:
		c.ReceivedAt = "Unknown"
	}
	return c
}

// LastUpdatedText renders how long ago the last successful fetch happened.
func LastUpdatedText(fetched, now time.Time) string {
	if fetched.IsZero() {
		return "Last updated: never"
	}
	mins := int(now.Sub(fetched) / time.Minute)
	switch {
	case mins <= 0:
		return "Last updated: just now"
	case mins == 1:
		return "Last updated: 1 minute ago"
	default:
		return fmt.Sprintf("Last updated: %d minutes ago", mins)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
