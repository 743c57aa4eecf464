package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pansoNote/internal/config"
	"pansoNote/internal/database"
	"pansoNote/internal/metrics"
	"pansoNote/internal/ocr"
	"pansoNote/internal/storage"
	"pansoNote/internal/store"
	"pansoNote/internal/summarize"
	"pansoNote/internal/tasks"
	"pansoNote/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	summarizer, err := summarize.New(cfg.Summarize)
	if err != nil {
		log.Fatalf("init summarize service: %v", err)
	}
	recognizer := ocr.NewClient(cfg.OCR.BaseURL, cfg.OCR.Timeout)
	notifier := worker.RedisPublisher{Client: redisClient}

	ocrHandler := worker.NewOCRTaskHandler(db, worker.MinioFetcher{Client: storageClient}, recognizer, notifier, logger)
	summarizeHandler := worker.NewSummarizeTaskHandler(store.NewNoteStore(db), summarizer, notifier, logger)

	sweeper := worker.NewOrphanSweeper(db, storageClient, logger)
	cronRunner, err := sweeper.Start()
	if err != nil {
		log.Fatalf("start orphan sweeper: %v", err)
	}
	defer cronRunner.Stop()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":2112", nil); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: 10,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeOCRRecognize, ocrHandler)
	mux.Handle(tasks.TypeNoteSummarize, summarizeHandler)

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
