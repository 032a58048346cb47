package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator stores processed webhook delivery keys in Redis so every
// instance behind the load balancer shares them.
type Deduplicator struct {
	client redis.UniversalClient
	prefix string
}

// NewDeduplicator creates a Deduplicator writing keys under prefix.
func NewDeduplicator(client redis.UniversalClient, prefix string) *Deduplicator {
	return &Deduplicator{client: client, prefix: prefix}
}

func (d *Deduplicator) key(k string) string {
	return d.prefix + ":webhook:" + k
}

// Seen reports whether key was marked and has not expired.
func (d *Deduplicator) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check delivery %s: %w", key, err)
	}
	return n > 0, nil
}

// Mark records key for ttl.
func (d *Deduplicator) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.key(key), 1, ttl).Err(); err != nil {
		return fmt.Errorf("mark delivery %s: %w", key, err)
	}
	return nil
}
