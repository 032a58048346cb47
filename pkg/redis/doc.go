// Package redis connects to Redis and provides the shared state the billing
// engine needs when more than one instance runs: a webhook delivery
// deduplicator and a lease lock for singleton jobs.
//
// Configuration is read from the environment via github.com/caarlos0/env:
//
//	var cfg redis.Config
//	if err := env.Parse(&cfg); err != nil {
//	    return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	dedupe := redis.NewDeduplicator(client, cfg.KeyPrefix)
//	locker := redis.NewLocker(client, cfg.KeyPrefix)
//
// Healthcheck returns a probe suitable for readiness endpoints.
package redis
