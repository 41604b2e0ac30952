package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/gridforge/marketauth/internal/cache"
	"github.com/gridforge/marketauth/internal/config"
	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/http/handlers"
	"github.com/gridforge/marketauth/internal/http/router"
	"github.com/gridforge/marketauth/internal/metrics"
	"github.com/gridforge/marketauth/internal/observability/logger"
	"github.com/gridforge/marketauth/internal/store/pg"
	"github.com/gridforge/marketauth/internal/ticket"
	"github.com/gridforge/marketauth/internal/token"
	migrations "github.com/gridforge/marketauth/migrations/postgres"
)

func main() {
	// .env si existe; si no, seguimos con el entorno del sistema.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "ruta al config.yaml")
		migrate    = flag.Bool("migrate", false, "aplicar migraciones al arrancar")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.L().Fatal("config load failed", logger.Err(err))
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "marketauth",
	})
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		logger.L().Fatal("postgres connect failed", logger.Err(err))
	}
	defer store.Close()

	if *migrate {
		if err := store.ApplyMigrations(ctx, migrations.FS, migrations.Dir); err != nil {
			logger.L().Fatal("migrations failed", logger.Err(err))
		}
		logger.L().Info("migrations applied")
	}

	metaCache := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.MetadataTTL(),
	})

	meta := token.NewMetadataManager(cfg.ExternalToken.MetadataAddress, metaCache, cfg.MetadataTTL())
	validator := token.NewValidator(token.ValidatorConfig{
		Issuer:   cfg.ExternalToken.Issuer,
		Audience: cfg.ExternalToken.Audience,
		AllowAll: cfg.ExternalToken.AllowAll,
	}, meta)
	if cfg.ExternalToken.AllowAll {
		logger.L().Warn("external token validation is DISABLED (allow_all), solo para test/integración")
	}

	ring := token.NewKeyRing(token.NewStoreVault(store), cfg.Token.KeyName)
	logger.L().Info("key ring configured", logger.KeyName(cfg.Token.KeyName))
	minter := token.NewMinter(validator, ring, store, store, store)
	tickets := ticket.NewService(store, cfg.TicketTTL())

	metrics.Register(nil)
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{
		DBPool: func() *pgxpool.Pool { return store.Pool() },
	})
	if err != nil {
		logger.L().Fatal("metrics registration failed", logger.Err(err))
	}

	handler := router.New(router.Deps{
		Issuer:  cfg.Token.Issuer,
		Ring:    ring,
		Minter:  minter,
		Tickets: tickets,
		Readiness: map[string]handlers.Pinger{
			"postgres": store,
			"signing_key": pingerFunc(func(ctx context.Context) error {
				_, err := ring.GetSigningHandle(ctx)
				return err
			}),
		},
		Metrics: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server started", logger.Addr(cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("server failed", logger.Err(err))
		}
	case sig := <-stop:
		logger.L().Info("shutting down", logger.Any("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L().Error("shutdown error", logger.Err(err))
		}
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
