package bus

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// ChangesStream is the Redis stream ticket changes are appended to.
const ChangesStream = "ticket_changes"

// DefaultMaxLen caps the changes stream (approximate trimming).
const DefaultMaxLen = 10000

// RedisBus provides Redis Streams-based change events
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
	maxLen int64
}

// TicketChangeMessage represents one accepted webhook delivery that changed a ticket
type TicketChangeMessage struct {
	UserID        string                 `json:"user_id"`
	TicketID      string                 `json:"ticket_id"`
	FirstReceived bool                   `json:"first_received"`
	Changes       map[string]interface{} `json:"changes"`
	Timestamp     int64                  `json:"timestamp"`
}

// Fields flattens the message into stream entry values.
func (m TicketChangeMessage) Fields() (map[string]interface{}, error) {
	changesJSON, err := json.Marshal(m.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket changes: %w", err)
	}
	ts := m.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return map[string]interface{}{
		"user_id":        m.UserID,
		"ticket_id":      m.TicketID,
		"first_received": strconv.FormatBool(m.FirstReceived),
		"changes":        string(changesJSON),
		"timestamp":      ts,
	}, nil
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
		maxLen: DefaultMaxLen,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishTicketChange appends a change to the changes stream
func (rb *RedisBus) PublishTicketChange(ctx context.Context, msg TicketChangeMessage) error {
	fields, err := msg.Fields()
	if err != nil {
		return err
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ChangesStream,
		MaxLen: rb.maxLen,
		Approx: true,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish ticket change: %w", err)
	}

	rb.logger.Printf("Published change for ticket %s of %s to %s", msg.TicketID, msg.UserID, ChangesStream)
	return nil
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the changes stream
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"type":   "redis",
		"status": "connected",
	}

	if info, err := rb.GetStreamInfo(ctx, ChangesStream); err == nil {
		stats["changes_stream"] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
	}

	return stats, nil
}
