package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/codeabuu/pdfworld/pkg/cache"
)

// Deduplicator remembers webhook deliveries that were fully processed so
// redelivered bodies are acknowledged without work. It is an optimisation
// only: every handler is idempotent on its own.
type Deduplicator interface {
	// Seen reports whether key was marked and has not expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key for ttl.
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// DeliveryKey identifies a webhook delivery by its raw body.
func DeliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

const defaultDedupeCapacity = 10_000

// MemoryDeduplicator keeps delivery keys in a bounded in-process LRU.
type MemoryDeduplicator struct {
	seen *cache.LRU[string, struct{}]
}

// NewMemoryDeduplicator creates a deduplicator holding up to capacity keys.
func NewMemoryDeduplicator(capacity int) *MemoryDeduplicator {
	if capacity <= 0 {
		capacity = defaultDedupeCapacity
	}
	return &MemoryDeduplicator{seen: cache.New[string, struct{}](capacity)}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, key string) (bool, error) {
	_, ok := d.seen.Get(key)
	return ok, nil
}

func (d *MemoryDeduplicator) Mark(_ context.Context, key string, ttl time.Duration) error {
	d.seen.Set(key, struct{}{}, ttl)
	return nil
}
