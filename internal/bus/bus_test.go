package bus

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard, "", 0)

func TestNewBusWithoutRedisIsNull(t *testing.T) {
	b := NewBus("", quiet)
	defer b.Close()

	_, ok := b.(*NullBus)
	assert.True(t, ok)
	assert.NoError(t, b.HealthCheck(context.Background()))
}

func TestNewBusFallsBackOnBadURL(t *testing.T) {
	b := NewBus("not a redis url", quiet)
	defer b.Close()

	_, ok := b.(*NullBus)
	assert.True(t, ok)
}

func TestNullBusCountsDroppedChanges(t *testing.T) {
	nb := NewNullBus(quiet)
	ctx := context.Background()

	require.NoError(t, nb.PublishTicketChange(ctx, TicketChangeMessage{UserID: "u", TicketID: "T-1"}))
	require.NoError(t, nb.PublishTicketChange(ctx, TicketChangeMessage{UserID: "u", TicketID: "T-2"}))

	stats, err := nb.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "null", stats["type"])
	assert.EqualValues(t, 2, stats["dropped"])
}

func TestTicketChangeMessageFields(t *testing.T) {
	msg := TicketChangeMessage{
		UserID:        "usr_abc",
		TicketID:      "T-1",
		FirstReceived: true,
		Changes:       map[string]interface{}{"step": map[string]interface{}{"old": "a", "new": "b"}},
		Timestamp:     1700000000,
	}

	fields, err := msg.Fields()
	require.NoError(t, err)
	assert.Equal(t, "usr_abc", fields["user_id"])
	assert.Equal(t, "true", fields["first_received"])
	assert.EqualValues(t, 1700000000, fields["timestamp"])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(fields["changes"].(string)), &decoded))
	assert.Contains(t, decoded, "step")
}
