// Package httpserver runs an http.Handler with context-driven graceful
// shutdown and exposes a JSON readiness probe.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run binds the listener synchronously (bind errors are returned wrapped in
// ErrStart), serves until ctx is canceled, then drains in-flight requests for
// up to the shutdown timeout. The caller owns signal handling, typically via
// signal.NotifyContext.
//
// HealthCheckHandler runs named dependency checks (postgres, redis) and
// answers 200 or 503 with a per-check summary.
package httpserver
