package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// Criteria narrows the displayed tickets. The zero value matches everything.
type Criteria struct {
	// Step is matched exactly, ignoring case.
	Step string
	// IDSubstring is matched as a case-insensitive substring of the display id.
	IDSubstring string
	// From and To are inclusive bounds on received_at.
	From *time.Time
	To   *time.Time
}

// IsEmpty reports whether no filter is active.
func (c Criteria) IsEmpty() bool {
	return strings.TrimSpace(c.Step) == "" && strings.TrimSpace(c.IDSubstring) == "" && c.From == nil && c.To == nil
}

// Input is the raw text of the dashboard filter fields.
type Input struct {
	Step     string
	ID       string
	FromDate string
	FromTime string
	ToDate   string
	ToTime   string
}

const (
	dateLayout = "2006-01-02"
)

var timeLayouts = []string{"15:04", "15:04:05"}

// ParseCriteria turns filter field text into Criteria. A from-date without a
// time starts at 00:00, a to-date without a time ends at the last instant of
// the day. A time without its date is ignored.
func ParseCriteria(in Input, loc *time.Location) (Criteria, error) {
	if loc == nil {
		loc = time.Local
	}
	c := Criteria{
		Step:        strings.TrimSpace(in.Step),
		IDSubstring: strings.TrimSpace(in.ID),
	}

	from, err := parseBound(in.FromDate, in.FromTime, loc, false)
	if err != nil {
		return Criteria{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := parseBound(in.ToDate, in.ToTime, loc, true)
	if err != nil {
		return Criteria{}, fmt.Errorf("invalid to date: %w", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return Criteria{}, fmt.Errorf("to date %s is before from date %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	c.From, c.To = from, to
	return c, nil
}

func parseBound(dateStr, timeStr string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	timeStr = strings.TrimSpace(timeStr)
	if dateStr == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(dateLayout, dateStr, loc)
	if err != nil {
		return nil, fmt.Errorf("expected YYYY-MM-DD, got %q", dateStr)
	}

	if timeStr == "" {
		if endOfDay {
			t := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
			return &t, nil
		}
		return &day, nil
	}

	for _, layout := range timeLayouts {
		clock, err := time.Parse(layout, timeStr)
		if err != nil {
			continue
		}
		t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
		return &t, nil
	}
	return nil, fmt.Errorf("expected HH:MM, got %q", timeStr)
}

// Apply returns the tickets of c that satisfy criteria, newest first.
// Tickets without a parseable received_at sort last and never satisfy an
// active date bound. The input collection is not modified.
func Apply(c ticket.Collection, criteria Criteria) []ticket.Ticket {
	all := Sorted(c)
	if criteria.IsEmpty() {
		return all
	}

	step := strings.ToLower(strings.TrimSpace(criteria.Step))
	idSub := strings.ToLower(strings.TrimSpace(criteria.IDSubstring))

	out := make([]ticket.Ticket, 0, len(all))
	for _, t := range all {
		if step != "" && strings.ToLower(t.Step) != step {
			continue
		}
		if idSub != "" && !strings.Contains(strings.ToLower(t.ID), idSub) {
			continue
		}
		if criteria.From != nil && (!t.HasReceivedAt || t.ReceivedAt.Before(*criteria.From)) {
			continue
		}
		if criteria.To != nil && (!t.HasReceivedAt || t.ReceivedAt.After(*criteria.To)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Sorted materializes the collection ordered by received_at descending.
// Ties are broken by id so the order does not depend on map iteration.
func Sorted(c ticket.Collection) []ticket.Ticket {
	out := make([]ticket.Ticket, 0, len(c))
	for key, t := range c {
		if t.ID == "" {
			t.ID = key
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasReceivedAt != b.HasReceivedAt {
			return a.HasReceivedAt
		}
		if a.HasReceivedAt && !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.After(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
	return out
}
