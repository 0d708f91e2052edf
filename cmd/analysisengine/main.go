// Command analysisengine is the composition root: it wires config,
// persistence, cache, and the C6-C9 in-process services together and
// exposes the minimal operational surface (health, readiness, metrics)
// an external HTTP/API layer is expected to sit in front of (spec.md §1,
// §6 — the REST mapping itself is an external collaborator, not built
// here).
//
// Grounded on the teacher's cmd/server/main.go (config.Load, banner log
// lines, wiring services before starting background loops) trimmed down
// from a WebSocket/FIX trading gateway to this engine's much smaller
// surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightpricing/analysisengine/config"
	"github.com/freightpricing/analysisengine/engine"
	"github.com/freightpricing/analysisengine/obslog"
	"github.com/freightpricing/analysisengine/obsmetrics"
	"github.com/freightpricing/analysisengine/registry"
	"github.com/freightpricing/analysisengine/resultcache"
	"github.com/freightpricing/analysisengine/scheduler"
	"github.com/freightpricing/analysisengine/store/records"
	"github.com/freightpricing/analysisengine/store/results"
	"github.com/freightpricing/analysisengine/store/saved"
	"github.com/freightpricing/analysisengine/store/timeperiods"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := obslog.New(obslog.INFO, os.Stdout)
	logger.Info("starting freight pricing analysis engine", obslog.Component("main"))

	pool, err := pgxpool.New(context.Background(), postgresDSN(cfg))
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	cache, err := resultcache.NewRedisCache(&resultcache.RedisConfig{
		Address:      fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		Prefix:       "analysisengine",
	})
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer cache.Close()

	recordStore := records.NewPGStore(pool)
	resultStore := results.NewPGStore(pool)
	timePeriodStore := timeperiods.NewPGStore(pool)
	savedStore := saved.NewPGStore(pool)

	eng := engine.New(timePeriodStore, recordStore, resultStore, cache, cfg.Engine)

	reg := registry.New(savedStore, eng, func() string { return uuid.New().String() })

	exec := &scheduler.Executor{
		Store:          savedStore,
		Runner:         reg,
		Logger:         logger,
		PollInterval:   cfg.Scheduler.PollInterval,
		WorkerPoolSize: cfg.Scheduler.WorkerPoolSize,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := exec.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("schedule executor stopped unexpectedly", err, obslog.Component("main"))
		}
	}()

	health := obsmetrics.NewHealthChecker(version)
	health.RegisterCheck("record_store", postgresHealthCheck(pool))
	health.RegisterCheck("result_cache", redisHealthCheck(cache))
	health.RegisterCheck("memory", obsmetrics.MemoryHealthCheck(80))
	health.RegisterCheck("goroutines", obsmetrics.GoroutineHealthCheck(5000))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHealthHandler())
	mux.HandleFunc("/readyz", health.HTTPReadinessHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", obsmetrics.Handler())
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		logger.Info("operational surface listening", obslog.Component("main"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("operational server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", obslog.Component("main"))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err, obslog.Component("main"))
	}
}

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

func postgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Name, cfg.Database.SSLMode)
}

func postgresHealthCheck(pool *pgxpool.Pool) obsmetrics.HealthCheckFunc {
	return func() obsmetrics.ComponentHealth {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return obsmetrics.ComponentHealth{
				Status:      obsmetrics.StatusUnhealthy,
				Message:     err.Error(),
				LastChecked: time.Now(),
			}
		}
		return obsmetrics.ComponentHealth{Status: obsmetrics.StatusHealthy, LastChecked: time.Now()}
	}
}

func redisHealthCheck(cache *resultcache.RedisCache) obsmetrics.HealthCheckFunc {
	return func() obsmetrics.ComponentHealth {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			return obsmetrics.ComponentHealth{
				Status:      obsmetrics.StatusUnhealthy,
				Message:     err.Error(),
				LastChecked: time.Now(),
			}
		}
		return obsmetrics.ComponentHealth{Status: obsmetrics.StatusHealthy, LastChecked: time.Now()}
	}
}
