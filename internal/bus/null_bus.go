package bus

import (
	"context"
	"log"
	"sync/atomic"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger  *log.Logger
	dropped atomic.Int64
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishTicketChange logs the change but doesn't actually publish it
func (nb *NullBus) PublishTicketChange(ctx context.Context, msg TicketChangeMessage) error {
	nb.dropped.Add(1)
	nb.logger.Printf("Would publish change for ticket %s of %s (Redis disabled)", msg.TicketID, msg.UserID)
	return nil
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":    "null",
		"status":  "disabled",
		"dropped": nb.dropped.Load(),
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
