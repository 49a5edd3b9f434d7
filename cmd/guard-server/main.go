package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/palisade/internal/api"
	"github.com/triage-ai/palisade/internal/auth"
	"github.com/triage-ai/palisade/internal/config"
	"github.com/triage-ai/palisade/internal/engine"
	"github.com/triage-ai/palisade/internal/sandbox"
	"github.com/triage-ai/palisade/internal/schema"
	"github.com/triage-ai/palisade/internal/storage"
	"github.com/triage-ai/palisade/internal/store"
)

func main() {
	logger := mustBuildLogger(envOrDefault("GUARD_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	httpPort := envOrDefault("GUARD_HTTP_PORT", "8080")
	routeConfigPath := envOrDefault("GUARD_ROUTE_CONFIG", "routes.yaml")
	sandboxIdleTTL := time.Duration(envOrDefaultInt("GUARD_SANDBOX_IDLE_TTL_S", 300)) * time.Second
	requireBearerToken := envOrDefault("GUARD_REQUIRE_BEARER_TOKEN", "false") == "true"
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")

	logger.Info("starting guard server",
		zap.String("http_port", httpPort),
		zap.String("route_config", routeConfigPath),
	)

	// Schema registry — builtin descriptors are what a route config file
	// and the config UI are validated/rendered against.
	schemas := schema.NewRegistry()
	for _, d := range schema.BuiltinDescriptors() {
		if err := schemas.Register(d); err != nil {
			logger.Fatal("failed to register builtin schema", zap.String("kind", d.Kind), zap.Error(err))
		}
	}

	// Storage — ClickHouse or LogWriter fallback.
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
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

	// Postgres pool — route-config persistence.
	var pgStore *store.Store
	if postgresDSN != "" {
		pool, err := pgxpool.New(context.Background(), postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres pool", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(pool)
		logger.Info("postgres connected")
	} else {
		logger.Info("no POSTGRES_DSN set, route-config persistence disabled")
	}

	// Sandbox pool and config loader — load the route file into the engine
	// registry before accepting any traffic.
	sbox := sandbox.NewPool(sandboxIdleTTL, logger)
	loader := config.NewLoader(schemas, sbox, logger, pgStore)
	registry := engine.NewRegistry()
	if err := loader.LoadFile(routeConfigPath, registry); err != nil {
		logger.Fatal("failed to load route configuration", zap.String("path", routeConfigPath), zap.Error(err))
	}
	logger.Info("route configuration loaded", zap.String("path", routeConfigPath))

	deps := &api.Dependencies{
		Registry:   registry,
		Executor:   engine.NewExecutor(logger),
		Store:      pgStore,
		Writer:     writer,
		Schemas:    schemas,
		Auth:       auth.NewHeaderExtractor(requireBearerToken),
		Loader:     loader,
		Logger:     logger,
		ConfigPath: routeConfigPath,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
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

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("guard server stopped")
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
