package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		changes map[string]any
		want    Class
	}{
		{"no changes", nil, ClassUnchanged},
		{"empty changes", map[string]any{}, ClassUnchanged},
		{"first received", map[string]any{"first_received": true}, ClassNew},
		{"first received wins over fields", map[string]any{
			"first_received": "This is the first time this ticket has been received",
			"step":           map[string]any{"old": "a", "new": "b"},
		}, ClassNew},
		{"field change", map[string]any{"step": map[string]any{"old": "a", "new": "b"}}, ClassUpdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(Ticket{Changes: tt.changes}))
		})
	}
}

func TestParseReceivedAt(t *testing.T) {
	utc := time.UTC

	ts, err := ParseReceivedAt("2024-01-01T10:00:00Z", utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, utc), ts)

	// Python isoformat() without zone
	ts, err = ParseReceivedAt("2024-03-05T08:09:10.123456", utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 9, 10, 123456000, utc), ts)

	_, err = ParseReceivedAt("yesterday", utc)
	assert.Error(t, err)

	_, err = ParseReceivedAt("  ", utc)
	assert.Error(t, err)
}

func TestDecodeCollection(t *testing.T) {
	body := []byte(`{
		"A": {"step": "draft", "received_at": "2024-01-01T10:00:00Z", "tags": ["x", "y"], "module": "crm"},
		"B": {"ticket_id": "B-embedded", "step": "done", "received_at": "2024-01-02T10:00:00Z",
		      "changes": {"first_received": true}, "email_subject": "Hello"},
		"": {"id": 42, "received_at": "garbage"},
		"skip": "not an object"
	}`)

	c, err := DecodeCollection(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, c, 3)

	a := c["A"]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, "draft", a.Step)
	assert.True(t, a.HasReceivedAt)
	assert.Equal(t, []string{"x", "y"}, a.Tags)
	assert.Equal(t, "crm", a.Module)
	assert.Equal(t, ClassUnchanged, Classify(a))

	// Collection key takes precedence over the embedded id.
	b := c["B"]
	assert.Equal(t, "B", b.ID)
	assert.Equal(t, "B-embedded", b.EmbeddedID)
	assert.Equal(t, "Hello", b.EmailSubject)
	assert.Equal(t, ClassNew, Classify(b))

	// Empty key falls back to the embedded numeric id.
	n, ok := c["42"]
	require.True(t, ok)
	assert.False(t, n.HasReceivedAt)
	assert.Equal(t, "garbage", n.RawReceivedAt)
}

func TestDecodeCollectionRejectsNonObjects(t *testing.T) {
	_, err := DecodeCollection([]byte(`[1,2]`), time.UTC)
	assert.Error(t, err)

	_, err = DecodeCollection([]byte(``), time.UTC)
	assert.Error(t, err)

	_, err = DecodeCollection([]byte(`{"a":`), time.UTC)
	assert.Error(t, err)
}

func TestDecodeEmptyObject(t *testing.T) {
	c, err := DecodeCollection([]byte(`{}`), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, c)
}
