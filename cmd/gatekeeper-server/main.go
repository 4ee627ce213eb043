package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bookline-ai/gatekeeper/internal/api"
	"github.com/bookline-ai/gatekeeper/internal/auth"
	"github.com/bookline-ai/gatekeeper/internal/config"
	"github.com/bookline-ai/gatekeeper/internal/gateway"
	"github.com/bookline-ai/gatekeeper/internal/policy"
	"github.com/bookline-ai/gatekeeper/internal/session"
	"github.com/bookline-ai/gatekeeper/internal/storage"
	"github.com/bookline-ai/gatekeeper/internal/traffic"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logLevel := envOrDefault("GATEKEEPER_LOG_LEVEL", "info")
	logger := mustBuildLogger(logLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	cfg := config.Config{
		HTTPPort:           envOrDefault("GATEKEEPER_HTTP_PORT", "8080"),
		LogLevel:           logLevel,
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN:      os.Getenv("CLICKHOUSE_DSN"),
		AuthCacheTTL:       time.Duration(envOrDefaultInt("GATEKEEPER_AUTH_CACHE_TTL_S", 30)) * time.Second,
		PolicyCacheTTL:     time.Duration(envOrDefaultInt("GATEKEEPER_POLICY_CACHE_TTL_S", 60)) * time.Second,
		AuthFailOpen:       envOrDefaultBool("GATEKEEPER_AUTH_FAIL_OPEN", true),
		SoftConfirmTurnTTL: envOrDefaultInt("GATEKEEPER_SOFT_CONFIRM_TURN_TTL", 3),
		SessionIdleTimeout: time.Duration(envOrDefaultInt("GATEKEEPER_SESSION_IDLE_TIMEOUT_S", 1800)) * time.Second,
		Ceilings: traffic.Ceilings{
			TenantPerMinute: envOrDefaultInt("GATEKEEPER_TENANT_PER_MINUTE", config.DefaultCeilings().TenantPerMinute),
			TenantPerHour:   envOrDefaultInt("GATEKEEPER_TENANT_PER_HOUR", config.DefaultCeilings().TenantPerHour),
			IPPerMinute:     envOrDefaultInt("GATEKEEPER_IP_PER_MINUTE", config.DefaultCeilings().IPPerMinute),
			IPPerHour:       envOrDefaultInt("GATEKEEPER_IP_PER_HOUR", config.DefaultCeilings().IPPerHour),
		},
		PolicyFile: os.Getenv("GATEKEEPER_POLICY_FILE"),
	}

	logger.Info("starting gatekeeper server",
		zap.String("http_port", cfg.HTTPPort),
		zap.Int("soft_confirm_turn_ttl", cfg.SoftConfirmTurnTTL),
		zap.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
	)

	// Static policy tables — built in, or from the policy file
	pol := config.DefaultPolicy()
	if cfg.PolicyFile != "" {
		var err error
		pol, err = config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			logger.Fatal("failed to load policy file", zap.Error(err))
		}
		logger.Info("policy file loaded", zap.String("path", cfg.PolicyFile))
	}
	staticResolver := policy.NewStaticResolver(pol.Registry, pol.Limits, pol.Schemas)

	// Postgres pool — per-tenant auth and policy overrides
	var (
		resolver      policy.Resolver = staticResolver
		authenticator auth.Authenticator
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		logger.Info("postgres connected")

		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL,
			FailOpen: cfg.AuthFailOpen,
			Logger:   logger,
		})
		// Tenant rows override the static table; the static table answers
		// for everything undeclared per tenant.
		resolver = policy.Chain{
			policy.NewPostgresRegistry(policy.PostgresRegistryConfig{
				DB:       db,
				CacheTTL: cfg.PolicyCacheTTL,
				Logger:   logger,
			}),
			staticResolver,
		}
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("no POSTGRES_DSN set, using static auth and built-in policy")
	}

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Shared limiters and session state
	trafficLimiter := traffic.NewLimiter(cfg.Ceilings)
	sessions := session.NewManager(session.Config{
		Limits:             pol.Limits,
		SoftConfirmTurnTTL: cfg.SoftConfirmTurnTTL,
		IdleTimeout:        cfg.SessionIdleTimeout,
	}, logger)

	stop := make(chan struct{})
	defer close(stop)
	trafficLimiter.StartJanitor(time.Minute, stop)
	sessions.StartJanitor(time.Minute, stop)

	frontDoor := gateway.New(trafficLimiter, resolver, writer, logger)

	// HTTP server
	deps := &api.Dependencies{
		Auth:      authenticator,
		Sessions:  sessions,
		FrontDoor: frontDoor,
		Logger:    logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("gatekeeper server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
