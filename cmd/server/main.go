// Command server starts the Streamfinity API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Abhisheksantra28/Streamfinity/internal/api"
	"github.com/Abhisheksantra28/Streamfinity/internal/auth"
	"github.com/Abhisheksantra28/Streamfinity/internal/media"
	"github.com/Abhisheksantra28/Streamfinity/internal/observability/logging"
	"github.com/Abhisheksantra28/Streamfinity/internal/observability/metrics"
	"github.com/Abhisheksantra28/Streamfinity/internal/server"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mediaDriver := flag.String("media-driver", "", "media store driver (s3 or memory)")
	mediaBucket := flag.String("media-bucket", "", "object storage bucket for uploaded media")
	mediaRegion := flag.String("media-region", "", "object storage region")
	mediaEndpoint := flag.String("media-endpoint", "", "object storage endpoint for S3-compatible services")
	mediaPublicBaseURL := flag.String("media-public-base-url", "", "public base URL for serving uploaded media")
	mediaKeyPrefix := flag.String("media-key-prefix", "", "key prefix applied to uploaded media objects")
	accessTTL := flag.Duration("access-token-ttl", 0, "lifetime of issued access tokens")
	refreshTTL := flag.Duration("refresh-token-ttl", 0, "lifetime of issued refresh tokens")
	cookieSecureAlways := flag.Bool("cookie-secure-always", false, "always mark auth cookies Secure regardless of the request scheme")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("STREAMFINITY_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("STREAMFINITY_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("STREAMFINITY_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("STREAMFINITY_ADDR"))

	accessSecret := strings.TrimSpace(os.Getenv("STREAMFINITY_ACCESS_TOKEN_SECRET"))
	refreshSecret := strings.TrimSpace(os.Getenv("STREAMFINITY_REFRESH_TOKEN_SECRET"))
	if accessSecret == "" || refreshSecret == "" {
		logger.Error("STREAMFINITY_ACCESS_TOKEN_SECRET and STREAMFINITY_REFRESH_TOKEN_SECRET are required")
		os.Exit(1)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     resolveDuration(*accessTTL, "STREAMFINITY_ACCESS_TOKEN_TTL", 0),
		RefreshTTL:    resolveDuration(*refreshTTL, "STREAMFINITY_REFRESH_TOKEN_TTL", 0),
	})
	if err != nil {
		logger.Error("failed to configure token service", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("STREAMFINITY_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres datastore driver", "driver", driver)
		os.Exit(1)
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("STREAMFINITY_DATA"))
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "STREAMFINITY_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "STREAMFINITY_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "STREAMFINITY_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "STREAMFINITY_POSTGRES_MAX_CONN_IDLE", 0)
		if maxLifetime > 0 || maxIdle > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresConnLifetimes(maxLifetime, maxIdle))
		}
		if healthInterval := resolveDuration(*postgresHealthInterval, "STREAMFINITY_POSTGRES_HEALTH_INTERVAL", 0); healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresHealthCheckInterval(healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "STREAMFINITY_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("STREAMFINITY_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	mediaStore, err := configureMediaStore(mediaStoreConfig{
		Driver:        firstNonEmpty(*mediaDriver, os.Getenv("STREAMFINITY_MEDIA_DRIVER")),
		Bucket:        firstNonEmpty(*mediaBucket, os.Getenv("STREAMFINITY_MEDIA_BUCKET")),
		Region:        firstNonEmpty(*mediaRegion, os.Getenv("STREAMFINITY_MEDIA_REGION")),
		Endpoint:      firstNonEmpty(*mediaEndpoint, os.Getenv("STREAMFINITY_MEDIA_ENDPOINT")),
		PublicBaseURL: firstNonEmpty(*mediaPublicBaseURL, os.Getenv("STREAMFINITY_MEDIA_PUBLIC_BASE_URL")),
		KeyPrefix:     firstNonEmpty(*mediaKeyPrefix, os.Getenv("STREAMFINITY_MEDIA_KEY_PREFIX")),
	}, serverMode)
	if err != nil {
		logger.Error("failed to configure media store", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, tokens, mediaStore)
	if resolveBool(*cookieSecureAlways, "STREAMFINITY_COOKIE_SECURE_ALWAYS") {
		handler.CookiePolicy.SecureMode = api.AuthCookieSecureAlways
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("STREAMFINITY_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("STREAMFINITY_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "STREAMFINITY_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "STREAMFINITY_RATE_GLOBAL_BURST"),
			LoginLimit:    resolveInt(*loginLimit, "STREAMFINITY_RATE_LOGIN_LIMIT"),
			LoginWindow:   resolveDuration(*loginWindow, "STREAMFINITY_RATE_LOGIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("STREAMFINITY_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("STREAMFINITY_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "STREAMFINITY_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("STREAMFINITY_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Streamfinity API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
	logger.Info("metrics endpoint available", "path", "/metrics")

	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type mediaStoreConfig struct {
	Driver        string
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	KeyPrefix     string
}

func configureMediaStore(cfg mediaStoreConfig, mode string) (media.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if cfg.Bucket != "" {
			driver = "s3"
		} else {
			driver = "memory"
		}
	}
	switch driver {
	case "s3":
		return media.NewS3Store(context.Background(), media.S3Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
			KeyPrefix:     cfg.KeyPrefix,
		})
	case "memory":
		if mode == "production" {
			return nil, fmt.Errorf("production mode requires the s3 media driver")
		}
		return media.NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unsupported media driver %q", driver)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("STREAMFINITY_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
