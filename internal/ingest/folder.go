package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

// ProcessedDir is the subdirectory handled files are moved into.
const ProcessedDir = "processed"

// settleDelay is how long a file must be quiet before it is read.
const settleDelay = 300 * time.Millisecond

// Receiver accepts one ticket payload for a user.
type Receiver interface {
	Receive(ctx context.Context, userID string, payload map[string]any) (tracker.Result, error)
}

// FolderOptions controls drop-folder behavior.
type FolderOptions struct {
	Dir      string
	UserID   string
	Watch    bool
	Patterns []string // e.g. []string{"*.jsonl", "*.json"}
	Logger   *log.Logger
}

// FolderStats counts handled tickets.
type FolderStats struct {
	Ingested int
	Errors   int
	Files    int
}

// FolderIngestor feeds ticket files dropped into a directory through the
// tracker, one-shot or in watch mode.
type FolderIngestor struct {
	receiver Receiver
	opts     FolderOptions

	mu      sync.Mutex
	pending map[string]time.Time
	stats   FolderStats
}

// NewFolderIngestor constructs a folder ingestor.
func NewFolderIngestor(receiver Receiver, opts FolderOptions) *FolderIngestor {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ingest-folder] ", log.LstdFlags)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.jsonl", "*.json"}
	}
	if opts.UserID == "" {
		opts.UserID = "default"
	}
	return &FolderIngestor{
		receiver: receiver,
		opts:     opts,
		pending:  make(map[string]time.Time),
	}
}

// Stats returns the counters so far.
func (fi *FolderIngestor) Stats() FolderStats {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.stats
}

// Run executes the ingestion per options (one-shot or watch).
func (fi *FolderIngestor) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(fi.opts.Dir, ProcessedDir), 0755); err != nil {
		return fmt.Errorf("failed to create processed dir: %w", err)
	}

	// One-shot initial pass
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}

	if !fi.opts.Watch {
		s := fi.Stats()
		fi.opts.Logger.Printf("Completed one-shot ingest: files=%d ingested=%d errors=%d", s.Files, s.Ingested, s.Errors)
		return nil
	}

	return fi.watchLoop(ctx)
}

func (fi *FolderIngestor) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range fi.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		ok, _ := filepath.Match(p, lower)
		if ok {
			return true
		}
	}
	return false
}

func (fi *FolderIngestor) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !fi.matches(e.Name()) {
			continue
		}
		fi.handleFile(ctx, filepath.Join(fi.opts.Dir, e.Name()))
	}
	return nil
}

func (fi *FolderIngestor) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fi.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	fi.opts.Logger.Printf("Watching directory: %s for %s (patterns: %s)",
		fi.opts.Dir, fi.opts.UserID, strings.Join(fi.opts.Patterns, ","))
	ticker := time.NewTicker(settleDelay / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s := fi.Stats()
			fi.opts.Logger.Printf("Watch stopping: files=%d ingested=%d errors=%d", s.Files, s.Ingested, s.Errors)
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !fi.matches(filepath.Base(ev.Name)) {
				continue
			}
			fi.mu.Lock()
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				// Wait for writers to finish before reading
				fi.pending[ev.Name] = time.Now()
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(fi.pending, ev.Name)
			}
			fi.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fi.opts.Logger.Printf("watch error: %v", err)
		case now := <-ticker.C:
			for _, path := range fi.settled(now) {
				fi.handleFile(ctx, path)
			}
		}
	}
}

// settled removes and returns pending paths that have been quiet long enough.
func (fi *FolderIngestor) settled(now time.Time) []string {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	var ready []string
	for path, last := range fi.pending {
		if now.Sub(last) >= settleDelay {
			ready = append(ready, path)
			delete(fi.pending, path)
		}
	}
	return ready
}

// handleFile ingests one file and moves it to the processed directory.
func (fi *FolderIngestor) handleFile(ctx context.Context, path string) {
	ingested, failed, err := fi.processFile(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		fi.opts.Logger.Printf("error processing %s: %v", path, err)
		failed++
	}

	fi.mu.Lock()
	fi.stats.Files++
	fi.stats.Ingested += ingested
	fi.stats.Errors += failed
	fi.mu.Unlock()

	dest := filepath.Join(fi.opts.Dir, ProcessedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		fi.opts.Logger.Printf("failed to move %s to %s: %v", path, dest, err)
	}
}

func (fi *FolderIngestor) processFile(ctx context.Context, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return 0, 0, nil
	}

	var raws [][]byte
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".jsonl"):
		scanner := bufio.NewScanner(bytes.NewReader(trim))
		// Increase buffer for long JSON lines
		scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
		for scanner.Scan() {
			if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
				raws = append(raws, append([]byte(nil), line...))
			}
		}
		if err := scanner.Err(); err != nil {
			return 0, 0, err
		}
	case trim[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trim, &arr); err != nil {
			return 0, 0, err
		}
		for _, raw := range arr {
			raws = append(raws, raw)
		}
	default:
		raws = append(raws, trim)
	}

	ingested, failed := 0, 0
	for _, raw := range raws {
		if err := fi.receive(ctx, raw); err != nil {
			fi.opts.Logger.Printf("skipping ticket in %s: %v", path, err)
			failed++
			continue
		}
		ingested++
	}
	return ingested, failed, nil
}

func (fi *FolderIngestor) receive(ctx context.Context, raw []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to decode ticket: %w", err)
	}
	_, err := fi.receiver.Receive(ctx, fi.opts.UserID, payload)
	return err
}
