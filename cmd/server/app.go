package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"feria/internal/platform/config"
	"feria/internal/platform/database"
	"feria/internal/platform/httpserver"
	redisClient "feria/internal/platform/redis"
	"feria/internal/registration"
	"feria/internal/registration/certificate"
	"feria/internal/registration/metrics"
	"feria/internal/registration/service"
	registrationStore "feria/internal/registration/store/registration"
	"feria/internal/registration/store/statscache"
	httptransport "feria/internal/transport/http"
)

// app holds the wired process and everything that must be closed on exit.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	router  httptransport.Options
	handler *registration.Handler
	closers []io.Closer
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		router: httptransport.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        cfg.Metrics.Enabled,
			Checks:         map[string]httptransport.HealthCheck{},
		},
	}

	records, err := a.buildRecordStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	certs, err := certificate.New(ctx, cfg.Upload, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("certificate store: %w", err)
	}
	if c, ok := certs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithCompensationTimeout(cfg.Upload.CompensationTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, service.WithMetrics(metrics.New()))
	}

	rdb, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb)
		a.router.Checks["redis"] = rdb.Health
		opts = append(opts, service.WithStatsCache(statscache.NewRedis(rdb.Client, cfg.Redis.StatsCacheTTL)))
		log.Info("statistics cache enabled", "ttl", cfg.Redis.StatsCacheTTL)
	} else if cfg.Database.Driver != config.DriverPostgres && cfg.Redis.StatsCacheTTL > 0 {
		// memory and sqlite stores are owned by this process alone
		opts = append(opts, service.WithStatsCache(statscache.NewMemory(cfg.Redis.StatsCacheTTL)))
		log.Info("in-process statistics cache enabled", "ttl", cfg.Redis.StatsCacheTTL)
	}

	svc, err := registration.NewService(records, certs, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = registration.NewHandler(svc, log, cfg.Upload.MaxFileSize)
	return a, nil
}

func (a *app) buildRecordStore(ctx context.Context) (service.RegistrationStore, error) {
	if a.cfg.Database.Driver == config.DriverMemory {
		a.log.Warn("using in-memory registration store; data is lost on restart")
		return registrationStore.NewInMemory(), nil
	}

	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)
	a.router.Checks["database"] = pingCheck(db)

	if a.cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		a.log.Info("database migrations applied", "driver", a.cfg.Database.Driver)
	}
	return registrationStore.NewSQL(db), nil
}

func pingCheck(db *sqlx.DB) httptransport.HealthCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// Handler builds the root HTTP handler.
func (a *app) Handler() http.Handler {
	return httptransport.NewRouter(a.log, a.router, a.handler)
}

// Run serves HTTP until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	router := a.Handler()
	srv := httpserver.New(a.cfg.Server.Addr, router, a.cfg.Server.ReadHeaderTimeout)
	return httpserver.Run(ctx, srv, a.cfg.Server.ShutdownTimeout, a.log)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
