package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/dispatch"
	"podcast-pipeline/internal/invoke"
	"podcast-pipeline/internal/logging"
	"podcast-pipeline/internal/orchestrator"
	"podcast-pipeline/internal/storage"
	"podcast-pipeline/internal/worker"
	"podcast-pipeline/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

const (
	baseRetryDelay = 1 * time.Minute
	maxRetryDelay  = 1 * time.Hour
)

// retryDelay doubles from one minute up to an hour.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	log.Printf("Task %s failed %d times, retrying in %v", task.Type(), n+1, delay)
	return delay
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	store := db.NewStore(conn)

	artifacts, err := storage.NewS3Client(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatal(err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"high":    2,
				"default": 1,
			},
			RetryDelayFunc: retryDelay,
		},
	)

	dispatcher := dispatch.New(client, invoke.NewClient(cfg.Workers.APIKey, cfg.Workers.Timeout), cfg.Workers)
	regen := orchestrator.New(store, artifacts, dispatcher)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(client, store, regen, cfg.Retry)

	mux.HandleFunc(tasks.TypeRegenerateEpisode, taskHandler.HandleRegenerateEpisodeTask)
	mux.HandleFunc(tasks.TypeRetryFailedEpisodes, taskHandler.HandleRetryFailedEpisodesTask)

	log.Printf("Worker starting (commit: %s)", CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
