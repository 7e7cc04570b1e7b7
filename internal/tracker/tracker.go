package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/goccy/go-json"

	"github.com/Ghostified/webhook-tracker-kati/internal/bus"
	"github.com/Ghostified/webhook-tracker-kati/internal/store"
	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// FirstReceivedMessage is the change value recorded for a ticket seen for the first time.
const FirstReceivedMessage = "This is the first time this ticket has been received"

var (
	// ErrMissingID is returned for payloads carrying neither id nor ticket_id.
	ErrMissingID = errors.New("ticket must have id or ticket_id")
	// ErrNotFound is returned when a ticket does not exist for the user.
	ErrNotFound = errors.New("ticket not found")
)

// Result describes what a webhook delivery did to the stored ticket.
type Result struct {
	TicketID      string
	FirstReceived bool
	// Changes holds Change values per field, or the first_received marker.
	Changes map[string]any
}

// HasChanges reports whether the delivery changed anything.
func (r Result) HasChanges() bool {
	return len(r.Changes) > 0
}

// Tracker keeps the latest version of every ticket per user and records
// what changed between deliveries.
type Tracker struct {
	store  *store.Store
	bus    bus.Bus
	logger *log.Logger
	now    func() time.Time
}

// New creates a tracker. A nil bus disables change events.
func New(st *store.Store, b bus.Bus, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if b == nil {
		b = bus.NewNullBus(logger)
	}
	return &Tracker{store: st, bus: b, logger: logger, now: time.Now}
}

// Receive stores a delivered ticket and returns its changes relative to the
// previous version. The payload is stamped with received_at and changes.
func (t *Tracker) Receive(ctx context.Context, userID string, payload map[string]any) (Result, error) {
	id := ticket.IDOf(payload)
	if id == "" {
		return Result{}, ErrMissingID
	}

	receivedAt := t.now().UTC()
	payload["received_at"] = receivedAt.Format(time.RFC3339Nano)

	res := Result{TicketID: id, Changes: map[string]any{}}
	prev, err := t.Get(ctx, userID, id)
	switch {
	case errors.Is(err, ErrNotFound):
		res.FirstReceived = true
		res.Changes[ticket.FirstReceivedKey] = FirstReceivedMessage
	case err != nil:
		return Result{}, err
	default:
		for field, change := range Diff(prev, payload) {
			res.Changes[field] = change
		}
	}
	payload["changes"] = res.Changes

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode ticket %s: %w", id, err)
	}
	if err := t.store.UpsertTicket(ctx, userID, id, body, receivedAt); err != nil {
		return Result{}, err
	}

	if res.HasChanges() {
		t.logger.Printf("Ticket %s of %s changed: %d field(s)", id, userID, len(res.Changes))
		msg := bus.TicketChangeMessage{
			UserID:        userID,
			TicketID:      id,
			FirstReceived: res.FirstReceived,
			Changes:       res.Changes,
			Timestamp:     receivedAt.Unix(),
		}
		// Best-effort publish, storage already succeeded
		if err := t.bus.PublishTicketChange(ctx, msg); err != nil {
			t.logger.Printf("Failed to publish change for ticket %s: %v", id, err)
		}
	} else {
		t.logger.Printf("Ticket %s of %s received (no changes)", id, userID)
	}
	return res, nil
}

// All returns every ticket of the user keyed by ticket id.
func (t *Tracker) All(ctx context.Context, userID string) (map[string]map[string]any, error) {
	rows, err := t.store.ListTickets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		fields, err := decodeBody(row)
		if err != nil {
			t.logger.Printf("Skipping unreadable ticket %s: %v", row.TicketID, err)
			continue
		}
		out[row.TicketID] = fields
	}
	return out, nil
}

// Get returns one ticket, or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, userID, ticketID string) (map[string]any, error) {
	row, err := t.store.GetTicket(ctx, userID, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(row)
}

// Count returns the number of tickets stored for the user.
func (t *Tracker) Count(ctx context.Context, userID string) (int, error) {
	return t.store.CountTickets(ctx, userID)
}

// Clear removes every ticket of the user.
func (t *Tracker) Clear(ctx context.Context, userID string) (int64, error) {
	n, err := t.store.ClearTickets(ctx, userID)
	if err != nil {
		return 0, err
	}
	t.logger.Printf("Cleared %d ticket(s) for %s", n, userID)
	return n, nil
}

func decodeBody(row store.StoredTicket) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(row.Body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode ticket %s: %w", row.TicketID, err)
	}
	return fields, nil
}
