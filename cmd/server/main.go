// Command server starts the FileVault API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"filevault/internal/api"
	"filevault/internal/auth"
	"filevault/internal/content"
	"filevault/internal/observability/logging"
	"filevault/internal/observability/metrics"
	"filevault/internal/queue"
	"filevault/internal/redisx"
	"filevault/internal/server"
	"filevault/internal/storage"
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
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	contentRoot := flag.String("content-root", "", "directory holding uploaded file content")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory, redis, or postgres)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "lifetime of authentication tokens")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired session sweeps")
	queueDriver := flag.String("queue-driver", "", "job queue driver (memory or redis)")
	thumbnailStream := flag.String("queue-thumbnail-stream", "", "Redis stream key for thumbnail jobs")
	welcomeStream := flag.String("queue-welcome-stream", "", "Redis stream key for welcome jobs")
	queueGroup := flag.String("queue-group", "", "Redis consumer group for job streams")
	redisAddr := flag.String("redis-addr", "", "Redis address shared by sessions, queues, and throttling")
	redisAddrs := flag.String("redis-addrs", "", "comma separated Redis addresses")
	redisUsername := flag.String("redis-username", "", "Redis username")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisMasterName := flag.String("redis-master-name", "", "Redis sentinel master name")
	redisPoolSize := flag.Int("redis-pool-size", 0, "maximum Redis connections")
	redisTLSCA := flag.String("redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSCert := flag.String("redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := flag.String("redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := flag.String("redis-tls-server-name", "", "override Redis TLS server name")
	redisTLSSkipVerify := flag.Bool("redis-tls-skip-verify", false, "skip Redis TLS verification")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	hardenedPasswords := flag.Bool("hardened-passwords", false, "store new passwords as salted PBKDF2 records")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("FILEVAULT_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("FILEVAULT_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("FILEVAULT_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("FILEVAULT_ADDR"))

	redisCfg := redisx.Config{
		Addr:       firstNonEmpty(*redisAddr, os.Getenv("FILEVAULT_REDIS_ADDR")),
		Addrs:      splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("FILEVAULT_REDIS_ADDRS"))),
		Username:   firstNonEmpty(*redisUsername, os.Getenv("FILEVAULT_REDIS_USERNAME")),
		Password:   firstNonEmpty(*redisPassword, os.Getenv("FILEVAULT_REDIS_PASSWORD")),
		MasterName: firstNonEmpty(*redisMasterName, os.Getenv("FILEVAULT_REDIS_MASTER_NAME")),
		PoolSize:   resolveInt(*redisPoolSize, "FILEVAULT_REDIS_POOL_SIZE"),
		TLS: redisx.TLSConfig{
			CAFile:             firstNonEmpty(*redisTLSCA, os.Getenv("FILEVAULT_REDIS_TLS_CA")),
			CertFile:           firstNonEmpty(*redisTLSCert, os.Getenv("FILEVAULT_REDIS_TLS_CERT")),
			KeyFile:            firstNonEmpty(*redisTLSKey, os.Getenv("FILEVAULT_REDIS_TLS_KEY")),
			ServerName:         firstNonEmpty(*redisTLSServerName, os.Getenv("FILEVAULT_REDIS_TLS_SERVER_NAME")),
			InsecureSkipVerify: resolveBool(*redisTLSSkipVerify, "FILEVAULT_REDIS_TLS_SKIP_VERIFY"),
		},
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("FILEVAULT_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("FILEVAULT_DATA"))
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "FILEVAULT_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "FILEVAULT_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "FILEVAULT_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "FILEVAULT_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "FILEVAULT_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if connectTimeout := resolveDuration(*postgresConnectTimeout, "FILEVAULT_POSTGRES_CONNECT_TIMEOUT", 0); connectTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresConnectTimeout(connectTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("FILEVAULT_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(startupCtx, postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	blobs, err := content.NewStore(resolveContentRoot(*contentRoot))
	if err != nil {
		logger.Error("failed to open content store", "error", err)
		os.Exit(1)
	}

	sessionConfig, err := resolveSessionStoreConfig(
		*sessionStoreDriver,
		os.Getenv("FILEVAULT_SESSION_STORE"),
		driver,
		postgresDefaultDSN,
		firstNonEmpty(*sessionPostgresDSN, os.Getenv("FILEVAULT_SESSION_POSTGRES_DSN")),
		redisCfg.Addr != "" || len(redisCfg.Addrs) > 0,
	)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var sessionStore auth.SessionStore
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "redis":
		redisStore, err := auth.DialRedisSessionStore(redisCfg)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(startupCtx, sessionConfig.DSN)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	ttl := resolveDuration(*sessionTTL, "FILEVAULT_SESSION_TTL", auth.DefaultSessionTTL)
	sessions := auth.NewSessionManager(ttl, auth.WithStore(sessionStore))

	verifier, err := auth.NewVerifier(store)
	if err != nil {
		logger.Error("failed to configure credential verifier", "error", err)
		os.Exit(1)
	}

	jobQueues, err := configureJobQueues(jobQueueSettings{
		Driver:          firstNonEmpty(*queueDriver, os.Getenv("FILEVAULT_QUEUE_DRIVER")),
		Redis:           redisCfg,
		ThumbnailStream: firstNonEmpty(*thumbnailStream, os.Getenv("FILEVAULT_QUEUE_THUMBNAIL_STREAM")),
		WelcomeStream:   firstNonEmpty(*welcomeStream, os.Getenv("FILEVAULT_QUEUE_WELCOME_STREAM")),
		Group:           firstNonEmpty(*queueGroup, os.Getenv("FILEVAULT_QUEUE_GROUP")),
		Logger:          logging.WithComponent(logger, "queue"),
	})
	if err != nil {
		logger.Error("failed to configure job queues", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, sessions)
	handler.Verifier = verifier
	handler.Content = blobs
	handler.ThumbnailQueue = jobQueues.Thumbnails
	handler.WelcomeQueue = jobQueues.Welcome
	handler.Logger = logging.WithComponent(logger, "api")
	handler.HardenedPasswords = resolveBool(*hardenedPasswords, "FILEVAULT_HARDENED_PASSWORDS")

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	purgeInterval := resolveDuration(*sessionPurgeInterval, "FILEVAULT_SESSION_PURGE_INTERVAL", 15*time.Minute)
	sessionPurgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), sessions, purgeInterval)
	defer sessionPurgeStop()

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("FILEVAULT_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("FILEVAULT_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:   resolveFloat(*globalRPS, "FILEVAULT_RATE_GLOBAL_RPS"),
			GlobalBurst: resolveInt(*globalBurst, "FILEVAULT_RATE_GLOBAL_BURST"),
			LoginLimit:  resolveInt(*loginLimit, "FILEVAULT_RATE_LOGIN_LIMIT"),
			LoginWindow: resolveDuration(*loginWindow, "FILEVAULT_RATE_LOGIN_WINDOW", time.Minute),
			Redis:       redisCfg,
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("FILEVAULT_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("FileVault API listening", "addr", listenAddr, "mode", serverMode)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
	if closer, ok := sessionStore.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	} else if closer, ok := sessionStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
}

type sessionStoreConfig struct {
	Driver string
	DSN    string
}

func resolveSessionStoreConfig(flagDriver, envDriver, storageDriver, storageDSN, sessionDSN string, redisConfigured bool) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	sessionDSN = strings.TrimSpace(sessionDSN)
	if driver == "" {
		switch {
		case redisConfigured:
			driver = "redis"
		case sessionDSN != "":
			driver = "postgres"
		case storageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "redis":
		if !redisConfigured {
			return sessionStoreConfig{}, fmt.Errorf("redis session store selected without Redis address")
		}
		return sessionStoreConfig{Driver: "redis"}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(storageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

type jobQueueSettings struct {
	Driver          string
	Redis           redisx.Config
	ThumbnailStream string
	WelcomeStream   string
	Group           string
	Logger          *slog.Logger
}

type jobQueues struct {
	Thumbnails queue.Queue
	Welcome    queue.Queue
}

func configureJobQueues(settings jobQueueSettings) (jobQueues, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	switch driver {
	case "redis":
		if strings.TrimSpace(settings.Redis.Addr) == "" && len(settings.Redis.Addrs) == 0 {
			return jobQueues{}, fmt.Errorf("redis addr is required for the redis queue driver")
		}
		thumbnails, err := queue.NewRedisQueue(queue.RedisQueueConfig{
			Redis:  settings.Redis,
			Stream: firstNonEmpty(settings.ThumbnailStream, "filevault:thumbnails"),
			Group:  settings.Group,
			Logger: settings.Logger,
		})
		if err != nil {
			return jobQueues{}, err
		}
		welcome, err := queue.NewRedisQueue(queue.RedisQueueConfig{
			Redis:  settings.Redis,
			Stream: firstNonEmpty(settings.WelcomeStream, "filevault:welcome"),
			Group:  settings.Group,
			Logger: settings.Logger,
		})
		if err != nil {
			return jobQueues{}, err
		}
		return jobQueues{Thumbnails: thumbnails, Welcome: welcome}, nil
	case "", "memory":
		return jobQueues{
			Thumbnails: queue.NewMemoryQueue(128),
			Welcome:    queue.NewMemoryQueue(128),
		}, nil
	default:
		return jobQueues{}, fmt.Errorf("unsupported queue driver %q", driver)
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
	return ":5000"
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

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/filevault.json"
}

func resolveContentRoot(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv("FILEVAULT_CONTENT_ROOT"), os.Getenv("FOLDER_PATH"), content.DefaultRoot)
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("FILEVAULT_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
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
