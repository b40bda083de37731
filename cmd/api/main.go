package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"stockroom.org/internal/auth"
	"stockroom.org/internal/config"
	"stockroom.org/internal/httpapi"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/lock"
	"stockroom.org/internal/migrate"
	"stockroom.org/internal/obs"
	"stockroom.org/internal/reconcile"
	"stockroom.org/internal/reports"
	"stockroom.org/internal/store"
	"stockroom.org/internal/store/memstore"
	"stockroom.org/internal/store/pg"
)

const serviceName = "stockroom-api"

func main() {
	logg := obs.NewLogger(obs.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = obs.NewLogger(obs.Options{
		ServiceName: serviceName,
		Level:       obs.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"version": cfg.App.Version,
	})

	st, closeStore, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open store", err)
		os.Exit(1)
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open locker", err)
		os.Exit(1)
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := obs.NewMetrics(reg, reg)
	if err != nil {
		logg.Error(ctx, "failed to register metrics", err)
		os.Exit(1)
	}
	metrics.SetBuildInfo(cfg.App.Version, cfg.App.Commit)

	svc, err := inventory.New(st, nil,
		inventory.WithLocker(locker),
		inventory.WithLogger(logg),
		inventory.WithMetrics(metrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to build inventory service", err)
		os.Exit(1)
	}

	if cfg.Auth.BootstrapAdminEmail != "" {
		created, err := svc.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap admin", err)
			os.Exit(1)
		}
		if created {
			logg.Info(logg.WithField(ctx, "email", cfg.Auth.BootstrapAdminEmail), "bootstrap admin created")
		}
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logg.Error(ctx, "failed to configure tokens", err)
		os.Exit(1)
	}

	api, err := httpapi.New(httpapi.Deps{
		Inventory: svc,
		Reports:   reports.New(st, svc.Engine()),
		Tokens:    tokens,
		Store:     st,
		Metrics:   metrics,
		Logger:    logg,
		Version:   cfg.App.Version,
	}, httpapi.Options{
		RateBurst:    cfg.HTTP.RateLimitBurst,
		RatePerSec:   cfg.HTTP.RateLimitRPS,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		logg.Error(ctx, "failed to build http api", err)
		os.Exit(1)
	}

	var scheduler *reconcile.Scheduler
	if cfg.Reconcile.Enabled {
		scheduler, err = reconcile.NewScheduler(svc, reconcile.Options{
			Schedule: cfg.Reconcile.Schedule,
			Locker:   locker,
			Logger:   logg,
			Timeout:  cfg.Reconcile.Timeout,
		})
		if err != nil {
			logg.Error(ctx, "failed to build reconcile scheduler", err)
			os.Exit(1)
		}
		if _, err := svc.RefreshStockCache(ctx); err != nil {
			logg.Warn(ctx, "initial stock cache refresh failed", err)
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	logg.Info(logg.WithField(ctx, "addr", srv.Addr), "starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-stop:
		logg.Info(ctx, "shutting down")
	case err := <-errCh:
		logg.Error(ctx, "api server stopped unexpectedly", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "graceful shutdown failed", err)
		exitCode = 1
	}
	logg.Info(ctx, "stopped")
	if exitCode != 0 {
		closeLocker()
		closeStore()
		os.Exit(exitCode)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logg *obs.Logger) (store.Store, func(), error) {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		logg.Info(ctx, "using in-memory store")
		return memstore.New(), func() {}, nil
	}

	pgStore, err := pg.Open(cfg.Store.DSN, pg.Options{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := pgStore.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pgStore.Ping(pingCtx); err != nil {
		closeFn()
		return nil, nil, err
	}

	if cfg.Store.AutoMigrate {
		files := pg.Migrations()
		if cfg.Store.MigrationsDir != "" {
			files = os.DirFS(cfg.Store.MigrationsDir)
		}
		applied, err := migrate.NewManager(pgStore.DB(), files, migrate.WithLogger(logg)).Up(ctx)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		logg.Entry(ctx).Info().Strs("applied", applied).Msg("migrations up to date")
	}
	return pgStore, closeFn, nil
}

func openLocker(ctx context.Context, cfg *config.Config, logg *obs.Logger) (lock.Locker, func(), error) {
	if cfg.Lock.Driver != config.LockDriverRedis {
		return lock.NewKeyedMutex(), func() {}, nil
	}

	opts, err := cfg.Redis.Options()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		closeFn()
		return nil, nil, err
	}

	locker, err := lock.NewRedisLocker(client, lock.RedisOptions{
		Prefix: cfg.Lock.Prefix,
		TTL:    cfg.Lock.TTL,
		Retry:  cfg.Lock.Retry,
		Logger: logg,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	logg.Info(logg.WithField(ctx, "prefix", cfg.Lock.Prefix), "using redis locker")
	return locker, closeFn, nil
}
