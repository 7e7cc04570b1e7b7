package ingest

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ghostified/webhook-tracker-kati/internal/tracker"
)

type recordingReceiver struct {
	mu       sync.Mutex
	users    []string
	payloads []map[string]any
}

func (r *recordingReceiver) Receive(ctx context.Context, userID string, payload map[string]any) (tracker.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payload["id"] == nil {
		return tracker.Result{}, tracker.ErrMissingID
	}
	r.users = append(r.users, userID)
	r.payloads = append(r.payloads, payload)
	return tracker.Result{TicketID: payload["id"].(string)}, nil
}

func (r *recordingReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

var quiet = log.New(io.Discard, "", 0)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestOneShotIngest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "single.json", `{"id":"T-1","step":"draft"}`)
	writeFile(t, dir, "batch.json", `[{"id":"T-2"},{"id":"T-3"},{"step":"no id"}]`)
	writeFile(t, dir, "stream.jsonl", "{\"id\":\"T-4\"}\n\n{\"id\":\"T-5\"}\nnot json\n")
	writeFile(t, dir, "notes.txt", "ignored")

	rec := &recordingReceiver{}
	fi := NewFolderIngestor(rec, FolderOptions{Dir: dir, UserID: "usr_a", Logger: quiet})
	require.NoError(t, fi.Run(context.Background()))

	assert.Equal(t, 5, rec.count())
	for _, u := range rec.users {
		assert.Equal(t, "usr_a", u)
	}

	stats := fi.Stats()
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 5, stats.Ingested)
	assert.Equal(t, 2, stats.Errors)

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "single.json"))
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "stream.jsonl"))
	assert.NoFileExists(t, filepath.Join(dir, "batch.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestWatchIngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingReceiver{}
	fi := NewFolderIngestor(rec, FolderOptions{Dir: dir, Watch: true, Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fi.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "drop.json", `{"id":"T-9"}`)

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "drop.json"))
		return err == nil
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, "default", rec.users[0])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
