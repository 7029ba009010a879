package main

import (
	"context"
	"net/http"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"podcast-pipeline/internal/callback"
	"podcast-pipeline/internal/config"
	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/dispatch"
	"podcast-pipeline/internal/handlers"
	"podcast-pipeline/internal/invoke"
	"podcast-pipeline/internal/logging"
	"podcast-pipeline/internal/middleware"
	"podcast-pipeline/internal/notify"
	"podcast-pipeline/internal/orchestrator"
	"podcast-pipeline/internal/storage"
	"podcast-pipeline/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// App holds the long-lived clients the HTTP surface is built from.
type App struct {
	cfg         *config.Config
	store       *db.Store
	artifacts   *storage.Client
	asynqClient tasks.TaskEnqueuer
	invoker     *invoke.Client
}

// Router assembles the pipeline components and returns the HTTP handler.
func (a *App) Router() (http.Handler, error) {
	dispatcher := dispatch.New(a.asynqClient, a.invoker, a.cfg.Workers)
	regen := orchestrator.New(a.store, a.artifacts, dispatcher)

	sender, err := notify.NewSender(a.cfg.Email)
	if err != nil {
		return nil, err
	}
	var notifier callback.Notifier
	if sender != nil {
		notifier = notify.NewEmailNotifier(sender, a.store, a.cfg.BaseURL)
	}

	callbacks := callback.New(
		a.store,
		callback.NewSharedSecret(a.cfg.CallbackSecret),
		callback.NewHTTPTrigger(a.invoker, a.cfg.PostProcess.URL),
		notifier,
		a.cfg.PostProcess,
	)

	limiter := middleware.NewRateLimiterMiddleware(rate.Limit(a.cfg.RateLimit.RPS), a.cfg.RateLimit.Burst).
		WithTrustedProxies(a.cfg.RateLimit.TrustedProxies...)
	h := handlers.New(regen, callbacks, a.store, a.artifacts, a.asynqClient, a.cfg.BaseURL)
	return h.Router(a.cfg.AdminToken, limiter), nil
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

	artifacts, err := storage.NewS3Client(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatal(err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	app := &App{
		cfg:         cfg,
		store:       db.NewStore(conn),
		artifacts:   artifacts,
		asynqClient: client,
		invoker:     invoke.NewClient(cfg.Workers.APIKey, cfg.Workers.Timeout),
	}

	router, err := app.Router()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN is not set, admin routes will reject every request")
	}
	if cfg.CallbackSecret == "" {
		log.Warn("CALLBACK_SECRET is not set, completion callbacks will be rejected")
	}

	log.Printf("Starting server on :%s (commit: %s)", cfg.Port, CommitSHA)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
