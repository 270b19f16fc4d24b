package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/scmguard/scmguard/pkg/accounts"
	"github.com/scmguard/scmguard/pkg/api"
	"github.com/scmguard/scmguard/pkg/audit"
	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/config"
	"github.com/scmguard/scmguard/pkg/middleware"
	"github.com/scmguard/scmguard/pkg/migrations"
	"github.com/scmguard/scmguard/pkg/observability"
	"github.com/scmguard/scmguard/pkg/policy"
	"github.com/scmguard/scmguard/pkg/repositories"
	"github.com/scmguard/scmguard/pkg/teams"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scmguard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting scmguard authorization service")

	// Tracing
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if err := migrations.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.RecordDBStats(db.Stats())
			}
		}()
	}

	// Redis is optional; without it the policy cache runs in-process only
	// and rate limiting is disabled
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			redisOpts.Password = cfg.Redis.Password
		}
		redisOpts.DB = cfg.Redis.DB
		redisOpts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, continuing degraded")
		} else {
			logger.Info("Redis connection established")
		}
	}

	// Policy source: HTTP client behind the two-level row cache
	policyClient := policy.NewClient(cfg.Policy.BaseURL, policy.WithTimeout(cfg.Policy.Timeout))
	cacheOpts := []policy.CachedSourceOption{policy.WithCacheLogger(logger)}
	if metrics != nil {
		cacheOpts = append(cacheOpts, policy.WithCacheMetrics(metrics))
	}
	source := policy.NewCachedSource(policyClient, policy.CacheConfig{TTL: cfg.Policy.CacheTTL}, redisClient, cacheOpts...)

	resolverOpts := []authz.ResolverOption{authz.WithResolverLogger(logger)}
	if cfg.Policy.OnPremise {
		logger.Info("Running in on-premise mode, subscription lookups disabled")
		resolverOpts = append(resolverOpts, authz.WithOnPremise(authz.PlanOnPremise))
	}
	resolver := authz.NewResolver(source, resolverOpts...)

	// Stores
	accountStore := accounts.NewStore(db)
	repositoryStore := repositories.NewStore(db)
	teamStore := teams.NewStore(db)
	decisionRecorder := audit.NewDBRecorder(db, logger)

	var limiter *middleware.RateLimiter
	if redisClient != nil {
		limiter = middleware.NewRateLimiter(redisClient, nil)
	}

	server := api.NewServer(api.Options{
		Logger:       logger,
		Metrics:      metrics,
		Resolver:     resolver,
		Accounts:     accountStore,
		Repositories: repositoryStore,
		Teams:        teamStore,
		Audit:        decisionRecorder,
		Decisions:    decisionRecorder,
		RateLimiter:  limiter,
	})

	var handler http.Handler = server
	if providers != nil {
		handler = otelhttp.NewHandler(server, "scmguard.api")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health + metrics on a separate port for probes
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient, policyClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	// Expired ACL grants are filtered on read; the cron pass just keeps
	// the table from growing unbounded
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Policy.CleanupSchedule, func() {
		n, err := repositoryStore.CleanupExpiredGrants(context.Background())
		if err != nil {
			logger.WithError(err).Error("Expired ACL grant cleanup failed")
			return
		}
		if n > 0 {
			logger.Infof("Removed %d expired ACL grants", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Policy.CleanupSchedule, err)
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		scheduler.Stop()
		return nil
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc(providers.Shutdown)
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}
