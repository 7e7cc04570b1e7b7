package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newMemoryStore(t)

	// Verify tables were created
	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tracker.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetSetting(context.Background(), "k", "v"))
	assert.FileExists(t, path)
}

func TestSettings(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	_, ok, err := store.GetSetting(ctx, "user_id")
	require.NoError(t, err)
	assert.False(t, ok)

	settings := store.Settings()
	require.NoError(t, settings.Set(ctx, "user_id", "usr_abc123def"))
	require.NoError(t, settings.Set(ctx, "user_id", "usr_zzz999yyy"))

	value, ok, err := settings.Get(ctx, "user_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "usr_zzz999yyy", value)
}

func TestUpsertAndGetTicket(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	received := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, store.UpsertTicket(ctx, "usr_a", "T-1", []byte(`{"id":"T-1","step":"draft"}`), received))
	require.NoError(t, store.UpsertTicket(ctx, "usr_a", "T-1", []byte(`{"id":"T-1","step":"done"}`), received.Add(time.Minute)))

	got, err := store.GetTicket(ctx, "usr_a", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "T-1", got.TicketID)
	assert.JSONEq(t, `{"id":"T-1","step":"done"}`, string(got.Body))
	assert.True(t, got.ReceivedAt.Equal(received.Add(time.Minute)))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	_, err = store.GetTicket(ctx, "usr_b", "T-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCountAndClearTickets(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"A", "B", "C"} {
		require.NoError(t, store.UpsertTicket(ctx, "usr_a", id, []byte(`{}`), base.Add(time.Duration(i)*time.Hour)))
	}
	require.NoError(t, store.UpsertTicket(ctx, "usr_b", "Z", []byte(`{}`), base))

	tickets, err := store.ListTickets(ctx, "usr_a")
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "C", tickets[0].TicketID)
	assert.Equal(t, "A", tickets[2].TicketID)

	total, err := store.CountTickets(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	removed, err := store.ClearTickets(ctx, "usr_a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	n, err := store.CountTickets(ctx, "usr_a")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Other users are untouched.
	n, err = store.CountTickets(ctx, "usr_b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err = store.ClearTickets(ctx, "usr_a")
	require.NoError(t, err)
	assert.Zero(t, removed)
}
