package changes

import (
	"fmt"

	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// RefreshState is the per-session state the detector compares against.
// It is owned by the dashboard controller and only mutated by Detect.
type RefreshState struct {
	ClientID         string
	LastNewCount     int
	LastUpdatedCount int
}

// EventKind identifies which counter grew.
type EventKind string

const (
	EventNew     EventKind = "new"
	EventUpdated EventKind = "updated"
)

// Event is a delta notification produced by a refresh.
type Event struct {
	Kind  EventKind
	Total int
}

// Message is the toast text for the event.
func (e Event) Message() string {
	if e.Kind == EventNew {
		return fmt.Sprintf("New ticket received (%d total)", e.Total)
	}
	return fmt.Sprintf("Ticket updated (%d total)", e.Total)
}

// Result is the outcome of classifying one fetched collection.
type Result struct {
	Total        int
	NewCount     int
	UpdatedCount int
	Events       []Event
}

// Count classifies every ticket without touching any state.
func Count(c ticket.Collection) (newCount, updatedCount int) {
	for _, t := range c {
		switch ticket.Classify(t) {
		case ticket.ClassNew:
			newCount++
		case ticket.ClassUpdated:
			updatedCount++
		}
	}
	return newCount, updatedCount
}

// Detect classifies the collection, emits an event for each counter that grew
// since the previous successful fetch, then records the new counts in state.
// It must only be called with the result of a successful fetch.
func Detect(state *RefreshState, c ticket.Collection) Result {
	newCount, updatedCount := Count(c)
	res := Result{
		Total:        len(c),
		NewCount:     newCount,
		UpdatedCount: updatedCount,
	}

	if newCount > state.LastNewCount {
		res.Events = append(res.Events, Event{Kind: EventNew, Total: newCount})
	}
	if updatedCount > state.LastUpdatedCount {
		res.Events = append(res.Events, Event{Kind: EventUpdated, Total: updatedCount})
	}

	state.LastNewCount = newCount
	state.LastUpdatedCount = updatedCount
	return res
}
