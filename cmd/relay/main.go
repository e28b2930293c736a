package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/relay/internal/auth"
	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/conversation"
	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/gateway"
	"github.com/af-corp/relay/internal/quota"
	"github.com/af-corp/relay/internal/router"
	"github.com/af-corp/relay/internal/subscription"
	"github.com/af-corp/relay/internal/telemetry"
	"github.com/af-corp/relay/internal/types"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env-file", ".env", "optional dotenv file with backend credentials")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *envFile, err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfgFn := func() *config.Config { return loader.Config() }

	// PostgreSQL is optional; without it every caller gets the default plan.
	var dbPool *pgxpool.Pool
	if cfg.Database.Host != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (subscriptions fall back to the default plan)", "error", err)
		} else {
			logger.Info("database connected")
		}
		dbPool = pool
	}

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (quotas fail open, conversations kept in memory)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// The registry is built once; reloads only affect routing and quota settings.
	registry, err := router.BuildFromConfig(loader.Backends(), logger)
	if err != nil {
		logger.Error("failed to build backend registry", "error", err)
		os.Exit(1)
	}
	if len(registry.Available()) == 0 {
		logger.Warn("no backend has credentials; every request will fail until one is configured")
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	stats := router.NewStatsTracker()
	healthMon := router.NewHealthMonitor(cfg.Routing.HealthFailureThreshold, cfg.Routing.HealthCooldown)
	engine := dispatch.NewEngine(registry, router.NewRouter(registry, stats), stats, healthMon, cfgFn, metrics)

	var conversations conversation.Store
	convOpts := conversation.Options{MaxMessages: cfg.Conversation.MaxMessages, TTL: cfg.Conversation.TTL}
	if rdb != nil {
		conversations = conversation.NewRedisStore(rdb, convOpts)
	} else {
		conversations = conversation.NewMemoryStore(convOpts)
	}

	quotaCfg := func() config.QuotaConfig { return loader.Config().Quota }
	policy := quota.NewPolicy(func() time.Duration { return loader.Config().Quota.EvaluationTimeout })
	if err := policy.Load(cfg.Quota.PolicyPath); err != nil {
		logger.Error("failed to load quota policy", "error", err)
		os.Exit(1)
	}

	var (
		plans  quota.PlanSource = quota.NewStaticPlans(quotaCfg)
		ledger gateway.UsageLedger
	)
	if dbPool != nil {
		subs := subscription.NewStore(dbPool, rdb, func() types.Plan {
			return quota.DefaultPlan(loader.Config().Quota.DefaultPlan)
		})
		plans, ledger = subs, subs
	}
	checker := quota.NewChecker(plans, quota.NewUsageCounter(rdb), quota.NewLimiter(rdb), policy, quotaCfg, metrics)

	loader.OnReload(func() {
		if err := policy.Load(loader.Config().Quota.PolicyPath); err != nil {
			logger.Error("quota policy reload failed, keeping previous policy", "error", err)
		}
	})

	verifier := auth.NewVerifier(cfg.Commands.SigningSecret, cfg.Commands.MaxClockSkew)
	if !verifier.Enabled() {
		logger.Warn("no signing secret configured; /v1 requests are not authenticated")
	}

	handler := gateway.NewHandler(engine, conversations, checker, ledger, healthMon, metrics)
	r := gateway.NewRouter(handler, verifier, cfg.Server.AllowedOrigins, version)

	grpcSrv := startHealthServer(logger, cfg.Telemetry.GRPCPort, registry, healthMon)
	metricsSrv := startMetricsServer(logger, cfg.Telemetry.MetricsPort)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting", "addr", addr, "version", version, "backends", len(registry.Available()))
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	grpcSrv.GracefulStop()
	if metricsSrv != nil {
		metricsSrv.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

// startHealthServer exposes one gRPC health service per backend: SERVING when
// it has credentials and is not degraded.
func startHealthServer(logger *slog.Logger, port int, registry *router.Registry, monitor *router.HealthMonitor) *grpc.Server {
	hs := health.NewServer()
	for _, p := range registry.ListProfiles() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if p.Available {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(p.Name, status)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	monitor.OnChange(func(backend string, state router.HealthState) {
		status := healthpb.HealthCheckResponse_SERVING
		if state == router.HealthDegraded {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(backend, status)
		logger.Info("backend health changed", "backend", backend, "state", state.String())
	})

	// Cooldown recovery is evaluated lazily, so poll to surface it without traffic.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			for _, p := range registry.Available() {
				monitor.Status(p.Name)
			}
		}
	}()

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	if port <= 0 {
		return srv
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Warn("grpc health server disabled", "port", port, "error", err)
		return srv
	}
	go func() {
		logger.Info("grpc health server starting", "port", port)
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc health server stopped", "error", err)
		}
	}()
	return srv
}

func startMetricsServer(logger *slog.Logger, port int) *http.Server {
	if port <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}
