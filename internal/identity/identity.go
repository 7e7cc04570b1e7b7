package identity

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StorageKey is the durable storage key holding the client identifier.
const StorageKey = "user_id"

const (
	idPrefix    = "usr_"
	suffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLen   = 9
)

// Storage is durable client storage for small string settings.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Provider hands out the stable per-client identifier.
type Provider struct {
	storage Storage
	logger  *log.Logger

	mu sync.Mutex
	id string
}

// NewProvider creates a provider backed by storage. A nil storage yields an
// ephemeral identifier for the lifetime of the provider.
func NewProvider(storage Storage, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(log.Writer(), "[identity] ", log.LstdFlags)
	}
	return &Provider{storage: storage, logger: logger}
}

// GetOrCreateClientID returns the persisted identifier, creating and saving
// one on first use. Storage failures fall back to an in-memory identifier.
func (p *Provider) GetOrCreateClientID(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id
	}

	if p.storage == nil {
		p.id = NewClientID()
		p.logger.Printf("No durable storage configured, using ephemeral client id %s", p.id)
		return p.id
	}

	existing, ok, err := p.storage.Get(ctx, StorageKey)
	if err != nil {
		p.id = NewClientID()
		p.logger.Printf("Warning: failed to read client id, using ephemeral id %s: %v", p.id, err)
		return p.id
	}
	if ok && strings.TrimSpace(existing) != "" {
		p.id = existing
		return p.id
	}

	id := NewClientID()
	if err := p.storage.Set(ctx, StorageKey, id); err != nil {
		p.logger.Printf("Warning: failed to persist client id %s, it will not survive restart: %v", id, err)
	}
	p.id = id
	return p.id
}

// NewClientID generates "usr_" followed by nine random lowercase alphanumerics.
func NewClientID() string {
	raw := uuid.New()
	var b strings.Builder
	b.Grow(len(idPrefix) + suffixLen)
	b.WriteString(idPrefix)
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(suffixChars[int(raw[i])%len(suffixChars)])
	}
	return b.String()
}

// WebhookURL is the address external systems post ticket updates to.
func WebhookURL(origin, clientID string) string {
	return strings.TrimRight(origin, "/") + "/webhook/" + clientID
}
