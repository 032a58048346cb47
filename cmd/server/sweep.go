package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/queue"
	"github.com/codeabuu/pdfworld/pkg/redis"
	"github.com/codeabuu/pdfworld/pkg/subscription"
)

type trialSweeper interface {
	Run(ctx context.Context) (subscription.SweepReport, error)
}

// dayLocker claims a key for ttl. A nil release and a nil error mean
// someone else holds the key.
type dayLocker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type redisDayLocker struct {
	locker *redis.Locker
}

func (l redisDayLocker) Claim(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lease, err := l.locker.TryLock(ctx, key, ttl)
	if err != nil || lease == nil {
		return nil, err
	}
	return lease.Release, nil
}

func sweepLockKey(t time.Time) string {
	return "sweep:" + t.UTC().Format(time.DateOnly)
}

// sweepTask wraps the sweeper with a per-day lock. The lease is kept after a
// successful run so no other instance sweeps the same day; it is released
// after a failure so the next tick may retry. A nil locker runs unguarded.
func sweepTask(sweeper trialSweeper, locker dayLocker, ttl time.Duration, now func() time.Time, log *slog.Logger) queue.TaskFunc {
	return func(ctx context.Context) error {
		var release func(context.Context) error
		if locker != nil {
			var err error
			release, err = locker.Claim(ctx, sweepLockKey(now()), ttl)
			if err != nil {
				return err
			}
			if release == nil {
				log.InfoContext(ctx, "expired trial sweep already claimed by another instance", logger.Job("trial_sweeper"))
				return nil
			}
		}

		_, err := sweeper.Run(ctx)
		if err != nil && release != nil {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				log.WarnContext(ctx, "failed to release sweep lock", logger.Job("trial_sweeper"), logger.Error(relErr))
			}
		}
		return err
	}
}
