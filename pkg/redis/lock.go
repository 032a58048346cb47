package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out short leases so a job runs on one instance at a time.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker creates a Locker writing keys under prefix.
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Lease is a held lock.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// TryLock acquires name for ttl. It returns a nil Lease without error when
// another holder owns it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := l.prefix + ":lock:" + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Release gives the lock back. It returns ErrLockNotHeld when the lease
// expired and someone else took it.
func (ls *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, ls.client, []string{ls.key}, ls.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", ls.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
