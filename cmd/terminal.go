package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"
)

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}

	if err := screen.Init(); err != nil {
		return false
	}

	// Clean up immediately
	screen.Fini()
	return true
}

// getTerminalInfo returns detailed terminal information
func getTerminalInfo() string {
	var info []string

	if t := os.Getenv("TERM"); t == "" {
		info = append(info, "TERM=<not set>")
	} else {
		info = append(info, fmt.Sprintf("TERM=%s", t))
	}

	if termProgram := os.Getenv("TERM_PROGRAM"); termProgram != "" {
		info = append(info, fmt.Sprintf("TERM_PROGRAM=%s", termProgram))
	}

	if width, height, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 && height > 0 {
		info = append(info, fmt.Sprintf("Size=%dx%d", width, height))
	}

	if isTerminal() {
		info = append(info, "TTY=yes")
	} else {
		info = append(info, "TTY=no")
	}

	return strings.Join(info, ", ")
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getWorkingDir returns the current working directory.
// Falls back to the executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	// Normalize leading "./" for consistent joining
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// openLogFile opens logs/<name> under the working directory for appending.
func openLogFile(name string) (*os.File, string, error) {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, "", err
	}
	logPath := filepath.Join(logDir, name)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, logPath, err
	}
	return f, logPath, nil
}

// newLogger creates a prefixed logger. Non-debug runs drop lines that are
// not errors when quiet is set.
func newLogger(w io.Writer, prefix string, cfg LogConfig, quiet bool) *log.Logger {
	if quiet && !cfg.Debug() {
		w = &errorFilterWriter{writer: w}
	}
	return log.New(w, prefix, log.LstdFlags)
}

// errorFilterWriter only writes error messages to the underlying writer
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (n int, err error) {
	lc := strings.ToLower(string(p))
	if strings.Contains(lc, "error") ||
		strings.Contains(lc, "failed") ||
		strings.Contains(lc, "panic") ||
		strings.Contains(lc, "warning") {
		return w.writer.Write(p)
	}
	return len(p), nil
}
