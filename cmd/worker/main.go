// Command worker consumes thumbnail and welcome jobs from the queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"filevault/internal/content"
	"filevault/internal/jobs"
	"filevault/internal/observability/logging"
	"filevault/internal/observability/metrics"
	"filevault/internal/queue"
	"filevault/internal/redisx"
	"filevault/internal/storage"
)

func main() {
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	contentRoot := flag.String("content-root", "", "directory holding uploaded file content")
	thumbnailStream := flag.String("queue-thumbnail-stream", "filevault:thumbnails", "Redis stream key for thumbnail jobs")
	welcomeStream := flag.String("queue-welcome-stream", "filevault:welcome", "Redis stream key for welcome jobs")
	queueGroup := flag.String("queue-group", "", "Redis consumer group for job streams")
	redisAddr := flag.String("redis-addr", "", "Redis address for the job streams")
	redisAddrs := flag.String("redis-addrs", "", "comma separated Redis addresses")
	redisUsername := flag.String("redis-username", "", "Redis username")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisMasterName := flag.String("redis-master-name", "", "Redis sentinel master name")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("FILEVAULT_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("FILEVAULT_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	store, err := openDatastore(startupCtx, *storageDriver, *dataPath, *postgresDSN)
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	blobs, err := content.NewStore(firstNonEmpty(*contentRoot, os.Getenv("FILEVAULT_CONTENT_ROOT"), os.Getenv("FOLDER_PATH"), content.DefaultRoot))
	if err != nil {
		logger.Error("failed to open content store", "error", err)
		os.Exit(1)
	}

	redisCfg := redisx.Config{
		Addr:       firstNonEmpty(*redisAddr, os.Getenv("FILEVAULT_REDIS_ADDR")),
		Addrs:      splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("FILEVAULT_REDIS_ADDRS"))),
		Username:   firstNonEmpty(*redisUsername, os.Getenv("FILEVAULT_REDIS_USERNAME")),
		Password:   firstNonEmpty(*redisPassword, os.Getenv("FILEVAULT_REDIS_PASSWORD")),
		MasterName: firstNonEmpty(*redisMasterName, os.Getenv("FILEVAULT_REDIS_MASTER_NAME")),
	}
	if redisCfg.Addr == "" && len(redisCfg.Addrs) == 0 {
		logger.Error("redis address is required: the worker consumes jobs from Redis Streams")
		os.Exit(1)
	}

	thumbnailQueue, err := queue.NewRedisQueue(queue.RedisQueueConfig{
		Redis:  redisCfg,
		Stream: firstNonEmpty(os.Getenv("FILEVAULT_QUEUE_THUMBNAIL_STREAM"), *thumbnailStream),
		Group:  firstNonEmpty(*queueGroup, os.Getenv("FILEVAULT_QUEUE_GROUP")),
		Logger: logging.WithComponent(logger, "thumbnail-queue"),
	})
	if err != nil {
		logger.Error("failed to open thumbnail queue", "error", err)
		os.Exit(1)
	}
	welcomeQueue, err := queue.NewRedisQueue(queue.RedisQueueConfig{
		Redis:  redisCfg,
		Stream: firstNonEmpty(os.Getenv("FILEVAULT_QUEUE_WELCOME_STREAM"), *welcomeStream),
		Group:  firstNonEmpty(*queueGroup, os.Getenv("FILEVAULT_QUEUE_GROUP")),
		Logger: logging.WithComponent(logger, "welcome-queue"),
	})
	if err != nil {
		logger.Error("failed to open welcome queue", "error", err)
		os.Exit(1)
	}

	thumbnails, err := jobs.NewThumbnailWorker(jobs.ThumbnailWorkerConfig{
		Store:   store,
		Content: blobs,
		Queue:   thumbnailQueue,
		Logger:  logging.WithComponent(logger, "thumbnails"),
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to configure thumbnail worker", "error", err)
		os.Exit(1)
	}
	welcome, err := jobs.NewWelcomeWorker(jobs.WelcomeWorkerConfig{
		Store:   store,
		Queue:   welcomeQueue,
		Logger:  logging.WithComponent(logger, "welcome"),
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to configure welcome worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started", "thumbnail_stream", *thumbnailStream, "welcome_stream", *welcomeStream)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return thumbnails.Run(groupCtx) })
	group.Go(func() error { return welcome.Run(groupCtx) })

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("worker stopped")
}

func openDatastore(ctx context.Context, driver, dataPath, dsn string) (storage.Repository, error) {
	driver = strings.ToLower(strings.TrimSpace(firstNonEmpty(driver, os.Getenv("FILEVAULT_STORAGE_DRIVER"))))
	resolvedDSN := strings.TrimSpace(firstNonEmpty(dsn, os.Getenv("FILEVAULT_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
	if driver == "" {
		if resolvedDSN != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}
	switch driver {
	case "json":
		path := firstNonEmpty(dataPath, os.Getenv("FILEVAULT_DATA"), "data/filevault.json")
		return storage.NewJSONRepository(path)
	case "postgres":
		if resolvedDSN == "" {
			return nil, fmt.Errorf("postgres storage selected without DSN")
		}
		return storage.NewPostgresRepository(ctx, resolvedDSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
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
