package bus

import (
	"context"
	"io"
	"log"
)

// Bus defines the interface for change event bus implementations
type Bus interface {
	// PublishTicketChange publishes a ticket change to the changes stream
	PublishTicketChange(ctx context.Context, msg TicketChangeMessage) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or invalid, returns a NullBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	// Try to create Redis bus
	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis fails
	logger.Printf("Redis unavailable, change events disabled: %v", err)
	return NewNullBus(logger)
}
