package render

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteText prints stats and cards as plain text, for terminals without a TUI.
func WriteText(w io.Writer, vm ViewModel, stats Stats, now time.Time) error {
	if _, err := fmt.Fprintf(w, "Total: %d  New: %d  Updated: %d  %s\n\n",
		stats.Total, stats.New, stats.Updated, LastUpdatedText(stats.LastUpdated, now)); err != nil {
		return err
	}

	if vm.State != StateTickets {
		_, err := fmt.Fprintln(w, vm.Message)
		return err
	}

	for i, c := range vm.Cards {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s", i+1, c.ID)
		if c.Step != "" {
			fmt.Fprintf(&b, " [%s]", c.Step)
		}
		if c.Class != "" && c.Class != "unchanged" {
			fmt.Fprintf(&b, " (%s)", c.Class)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   Last Updated: %s\n", c.ReceivedAt)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, "   Tags: %s\n", strings.Join(c.Tags, ", "))
		}
		fmt.Fprintf(&b, "   Source: %s\n", c.Source)
		fmt.Fprintf(&b, "   Email: %q\n\n", c.EmailSubject)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
