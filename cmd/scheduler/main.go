package main

import (
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
	"podcast-pipeline/internal/logging"
	"podcast-pipeline/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	task, err := tasks.NewRetryFailedEpisodesTask()
	if err != nil {
		log.Fatalf("could not create task: %v", err)
	}

	// At most one pending sweep.
	_, err = scheduler.Register(cfg.Retry.Interval, task, asynq.Unique(10*time.Minute))
	if err != nil {
		log.Fatalf("could not register task: %v", err)
	}

	log.Printf("Scheduler starting (sweep %s, commit: %s)", cfg.Retry.Interval, CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}
