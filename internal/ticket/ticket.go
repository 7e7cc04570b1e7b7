package ticket

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FirstReceivedKey marks a ticket that was created by the latest webhook delivery.
const FirstReceivedKey = "first_received"

// Class is the recency classification of a ticket.
type Class string

const (
	ClassNew       Class = "new"
	ClassUpdated   Class = "updated"
	ClassUnchanged Class = "unchanged"
)

// Ticket is one tracked record as returned by the backend.
type Ticket struct {
	// ID is the display id: the collection key, or the embedded id when the key is empty.
	ID         string
	EmbeddedID string
	Step       string

	ReceivedAt    time.Time
	HasReceivedAt bool
	// RawReceivedAt keeps the wire value so unparseable timestamps can still be shown.
	RawReceivedAt string

	Tags         []string
	Module       string
	EmailSubject string
	Changes      map[string]any

	// Fields holds the full decoded payload, including fields the dashboard does not model.
	Fields map[string]any
}

// Collection maps ticket id to ticket. It has no inherent order.
type Collection map[string]Ticket

// Classify derives the ticket class from its changes map.
// first_received always wins over any other change keys.
func Classify(t Ticket) Class {
	if _, ok := t.Changes[FirstReceivedKey]; ok {
		return ClassNew
	}
	if len(t.Changes) > 0 {
		return ClassUpdated
	}
	return ClassUnchanged
}

// receivedAtLayouts covers RFC3339 stamps and Python isoformat() output.
var receivedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseReceivedAt parses a received_at value. Values without a zone are read in loc.
func ParseReceivedAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty received_at")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range receivedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported received_at format %q", s)
}

// FromFields builds a Ticket from a decoded payload object stored under key.
func FromFields(key string, fields map[string]any, loc *time.Location) Ticket {
	t := Ticket{
		EmbeddedID:   IDOf(fields),
		Step:         stringField(fields, "step"),
		Module:       stringField(fields, "module"),
		EmailSubject: stringField(fields, "email_subject"),
		Fields:       fields,
	}
	t.ID = firstNonEmpty(key, t.EmbeddedID)

	if raw, ok := fields["received_at"]; ok && raw != nil {
		t.RawReceivedAt = scalarString(raw)
		if ts, err := ParseReceivedAt(t.RawReceivedAt, loc); err == nil {
			t.ReceivedAt = ts
			t.HasReceivedAt = true
		}
	}

	if tags, ok := fields["tags"].([]any); ok {
		for _, tag := range tags {
			if s := scalarString(tag); s != "" {
				t.Tags = append(t.Tags, s)
			}
		}
	}

	if changes, ok := fields["changes"].(map[string]any); ok && len(changes) > 0 {
		t.Changes = changes
	}
	return t
}

// IDOf returns the payload's id, falling back to ticket_id.
func IDOf(fields map[string]any) string {
	return firstNonEmpty(stringField(fields, "id"), stringField(fields, "ticket_id"))
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	return scalarString(v)
}

// scalarString renders JSON scalars as text; ids are sometimes sent as numbers.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
