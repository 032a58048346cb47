package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/codeabuu/pdfworld/modules/billing"
	"github.com/codeabuu/pdfworld/pkg/config"
	"github.com/codeabuu/pdfworld/pkg/email"
	"github.com/codeabuu/pdfworld/pkg/httpserver"
	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/pg"
	"github.com/codeabuu/pdfworld/pkg/queue"
	"github.com/codeabuu/pdfworld/pkg/redis"
	"github.com/codeabuu/pdfworld/pkg/requestid"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/svc/pgstore"
)

type appConfig struct {
	Env          string        `env:"APP_ENV" envDefault:"development"`
	Service      string        `env:"SERVICE_NAME" envDefault:"billing"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	SweepHour    int           `env:"SWEEP_HOUR" envDefault:"2"`
	SweepMinute  int           `env:"SWEEP_MINUTE" envDefault:"0"`
	SweepLockTTL time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"23h"`
	SweepTimeout time.Duration `env:"SWEEP_TIMEOUT" envDefault:"30m"`
}

type configs struct {
	app   appConfig
	http  httpserver.Config
	pg    pg.Config
	redis redis.Config
	gw    paystack.Config
	subs  subscription.Config
	email email.Config
	queue queue.Config
}

func loadConfigs(envFiles []string) (configs, error) {
	var c configs
	if err := config.LoadEnv(envFiles...); err != nil {
		return c, err
	}
	return c, errors.Join(
		config.Load(&c.app),
		config.Load(&c.http),
		config.Load(&c.pg),
		config.Load(&c.redis),
		config.Load(&c.gw),
		config.Load(&c.subs),
		config.Load(&c.email),
		config.Load(&c.queue),
	)
}

func run(ctx context.Context, envFiles []string, sweepOnce bool) error {
	cfg, err := loadConfigs(envFiles)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.app.Env, cfg.app.Service),
		logger.WithLevel(logger.ParseLevel(cfg.app.LogLevel)),
		logger.WithContextExtractors(requestid.LoggerExtractor(), billing.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	checks := map[string]httpserver.CheckFunc{}

	store, closeStore, err := openStore(ctx, cfg.pg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	dedupe, locker, closeRedis, err := openRedis(ctx, cfg.redis, log, checks)
	if err != nil {
		return err
	}
	defer closeRedis()

	gateway, err := paystack.New(cfg.gw, paystack.WithLogger(log))
	if err != nil {
		return fmt.Errorf("paystack client: %w", err)
	}

	catalog := subscription.DefaultCatalog()
	if cfg.subs.PlansFile != "" {
		if catalog, err = subscription.LoadCatalogFile(cfg.subs.PlansFile); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := subscription.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pool := queue.NewPool(cfg.queue, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.queue.ShutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Warn("background tasks did not finish", logger.Error(err))
		}
	}()

	opts := []subscription.Option{
		subscription.WithLogger(log),
		subscription.WithMetrics(metrics),
		subscription.WithDispatcher(pool),
		subscription.WithNotifier(newNotifier(cfg.email, cfg.subs.AlertEmail, log)),
	}
	if dedupe != nil {
		opts = append(opts, subscription.WithDeduplicator(dedupe))
	}
	svc := subscription.NewService(store, gateway, catalog, cfg.subs, opts...)

	var dayLock dayLocker
	if locker != nil {
		dayLock = redisDayLocker{locker: locker}
	}
	sweep := sweepTask(subscription.NewExpiredTrialSweeper(svc), dayLock, cfg.app.SweepLockTTL, time.Now, log)
	if sweepOnce {
		return sweep(ctx)
	}

	scheduler := queue.NewScheduler(
		queue.WithCheckInterval(cfg.queue.CheckInterval),
		queue.WithSchedulerLogger(log),
	)
	if err := scheduler.AddTask("expired_trial_sweep",
		queue.DailyAt(cfg.app.SweepHour, cfg.app.SweepMinute),
		sweep,
		queue.WithTaskTimeout(cfg.app.SweepTimeout),
	); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log, 5*time.Second, checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", billing.Router(billing.RouterOptions{
		Service:  svc,
		Ingestor: subscription.NewWebhookIngestor(svc, cfg.gw.SecretKey),
		Logger:   log,
	}))

	server := httpserver.NewFromConfig(cfg.http, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, r) })
	g.Go(scheduler.Run(gctx))
	return g.Wait()
}

func openStore(ctx context.Context, cfg pg.Config, log *slog.Logger, checks map[string]httpserver.CheckFunc) (subscription.Store, func(), error) {
	if cfg.ConnectionString == "" {
		log.Warn("PG_CONN_URL is empty, using the in-memory store")
		return subscription.NewMemoryStore(), func() {}, nil
	}

	conn, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, conn, cfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
		conn.Close()
		return nil, nil, err
	}
	checks["postgres"] = pg.Healthcheck(conn)
	return pgstore.New(conn), conn.Close, nil
}

func openRedis(ctx context.Context, cfg redis.Config, log *slog.Logger, checks map[string]httpserver.CheckFunc) (*redis.Deduplicator, *redis.Locker, func(), error) {
	if cfg.ConnectionURL == "" {
		log.Warn("REDIS_URL is empty, webhook dedupe is in-process and sweeps are not coordinated")
		return nil, nil, func() {}, nil
	}

	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	checks["redis"] = redis.Healthcheck(client)
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", logger.Error(err))
		}
	}
	return redis.NewDeduplicator(client, cfg.KeyPrefix), redis.NewLocker(client, cfg.KeyPrefix), closeFn, nil
}

func newNotifier(cfg email.Config, to string, log *slog.Logger) subscription.Notifier {
	if to == "" {
		return nil
	}
	sender, err := email.New(cfg)
	if err != nil {
		log.Warn("operator alerts are logged only", logger.Error(err))
		return nil
	}
	return subscription.NewEmailNotifier(sender, to)
}
