package ui

import (
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	// Widget colors
	Bg          tcell.Color
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	SelectionBg tcell.Color
	SelectionFg tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color
	Accent      tcell.Color
	Success     tcell.Color
	Warning     tcell.Color
	Error       tcell.Color

	// Table colors
	TableHeader   tcell.Color
	TableHeaderBg tcell.Color
	TableRow      tcell.Color
	FlashBg       tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagTextPrimary string
	TagMuted       string
	TagAccent      string
	TagSuccess     string
	TagWarning     string
	TagError       string
}

// helpers
func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeNeon() Theme {
	return Theme{
		Bg:          hex("#0f0b14"),
		Surface:     hex("#14111a"),
		Border:      hex("#45385a"),
		FocusBorder: hex("#ff79c6"), // pink focus ring
		SelectionBg: hex("#2a1f3d"),
		SelectionFg: hex("#f8f5ff"),
		TextPrimary: hex("#f8f5ff"),
		TextMuted:   hex("#b8a8c9"),
		Accent:      hex("#ff6ac1"),
		Success:     hex("#00d084"),
		Warning:     hex("#ffd166"),
		Error:       hex("#ff5555"),

		TableHeader:   hex("#ff79c6"),
		TableHeaderBg: hex("#301d49"),
		TableRow:      hex("#f8f5ff"),
		FlashBg:       hex("#5a4300"),

		TagTextPrimary: "#f8f5ff",
		TagMuted:       "#b8a8c9",
		TagAccent:      "#ff6ac1",
		TagSuccess:     "#00d084",
		TagWarning:     "#ffd166",
		TagError:       "#ff5555",
	}
}

// themeBasic sticks to the 16 ANSI colors for terminals without truecolor.
func themeBasic() Theme {
	return Theme{
		Bg:          tcell.ColorDefault,
		Surface:     tcell.ColorDefault,
		Border:      tcell.ColorGray,
		FocusBorder: tcell.ColorFuchsia,
		SelectionBg: tcell.ColorNavy,
		SelectionFg: tcell.ColorWhite,
		TextPrimary: tcell.ColorWhite,
		TextMuted:   tcell.ColorGray,
		Accent:      tcell.ColorFuchsia,
		Success:     tcell.ColorGreen,
		Warning:     tcell.ColorYellow,
		Error:       tcell.ColorRed,

		TableHeader:   tcell.ColorFuchsia,
		TableHeaderBg: tcell.ColorDefault,
		TableRow:      tcell.ColorWhite,
		FlashBg:       tcell.ColorOlive,

		TagTextPrimary: "white",
		TagMuted:       "gray",
		TagAccent:      "fuchsia",
		TagSuccess:     "green",
		TagWarning:     "yellow",
		TagError:       "red",
	}
}

func detectTrueColor() bool {
	ct := strings.ToLower(os.Getenv("COLORTERM"))
	if strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit") {
		return true
	}
	return strings.Contains(strings.ToLower(os.Getenv("TERM")), "direct")
}

// classColor is the row color of a ticket class.
func (t Theme) classColor(c ticket.Class) tcell.Color {
	switch c {
	case ticket.ClassNew:
		return t.Success
	case ticket.ClassUpdated:
		return t.Warning
	default:
		return t.TableRow
	}
}
