package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/httpapi"
	memidempotency "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/idempotency"
	memlease "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/lease"
	memstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/store"
	postgres "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres"
	pgidempotency "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres/idempotency"
	pgstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres/store"
	redislease "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/redis/lease"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/credentials"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/itinerary"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/maintenance"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/users"
	platformclock "github.com/Overland-East-Bay/itinerary-planner-api/internal/platform/clock"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/platform/config"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/platform/logging"
	clockport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/clock"
	idempotencyport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/idempotency"
	leaseport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/lease"
	storeport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()

	st, idem, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	usersSvc := users.NewService(st)
	credSvc := credentials.NewService(st, clk, credentials.Options{
		SessionMaxAge:        cfg.SessionMaxAge,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
	})
	itinerarySvc := itinerary.NewService(st, itinerary.Policy{DayWithinTravel: cfg.DayWithinTravelRange})
	sweeper := maintenance.NewSweeper(credSvc, locker, logger, cfg.SweepInterval, cfg.SweepLeaseTTL).
		WithRecordPruner(idem, cfg.IdempotencyTTL, clk)

	api := httpapi.NewServer(usersSvc, itinerarySvc, idem, logger)
	routerOpts := httpapi.RouterOptions{
		AuthMiddleware:     httpapi.NewSessionAuthMiddleware(credSvc, logger),
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.RateLimitRPS > 0 {
		routerOpts.RateLimiter = httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	handler := httpapi.NewRouter(api, routerOpts)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storeport.Store, idempotencyport.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		if cfg.MigrateOnStart {
			version, err := postgres.Migrate(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
			logger.Info("migrations applied", slog.Int64("version", version))
		}
		logger.Info("storage backend selected", slog.String("backend", config.StoragePostgres))
		return pgstore.NewStore(pool), pgidempotency.NewStore(pool), pool.Close, nil
	default:
		logger.Info("storage backend selected", slog.String("backend", config.StorageMemory))
		return memstore.NewStore(), memidempotency.NewStore(), func() {}, nil
	}
}

// openLocker uses Redis when configured so that only one instance sweeps; otherwise
// the lease is process-local.
func openLocker(ctx context.Context, cfg *config.Config, clk clockport.Clock, logger *slog.Logger) (leaseport.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return memlease.NewLocker(clk), func() {}, nil
	}
	client, err := redislease.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis lease enabled")
	return redislease.NewLocker(client), func() { _ = client.Close() }, nil
}
