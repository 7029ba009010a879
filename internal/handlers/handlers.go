// Package handlers exposes the pipeline over HTTP: regeneration, the audio
// worker's completion callback, status polling and the public feed.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/callback"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/orchestrator"
	"podcast-pipeline/internal/pipeline"
	"podcast-pipeline/pkg/tasks"
)

// Regenerator runs a regeneration synchronously.
type Regenerator interface {
	Regenerate(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// CallbackHandler processes audio worker completion reports.
type CallbackHandler interface {
	Handle(ctx context.Context, cb callback.Callback) (callback.Result, error)
	Health(ctx context.Context, episodeID string) (*models.Episode, error)
}

// EpisodeReader serves read-only queries. Reads always go to the database.
type EpisodeReader interface {
	GetEpisode(ctx context.Context, id string) (*models.Episode, error)
	GetPodcast(ctx context.Context, id string) (*models.Podcast, error)
	ListEpisodeStatuses(ctx context.Context, podcastID string) ([]models.Episode, error)
	ListPublishedEpisodes(ctx context.Context, podcastID string) ([]models.Episode, error)
}

// AudioSource streams stored audio.
type AudioSource interface {
	Bucket() string
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

type Handlers struct {
	regen       Regenerator
	callbacks   CallbackHandler
	episodes    EpisodeReader
	audio       AudioSource
	asynqClient tasks.TaskEnqueuer
	baseURL     string
}

func New(regen Regenerator, callbacks CallbackHandler, episodes EpisodeReader, audio AudioSource, asynqClient tasks.TaskEnqueuer, baseURL string) *Handlers {
	return &Handlers{
		regen:       regen,
		callbacks:   callbacks,
		episodes:    episodes,
		audio:       audio,
		asynqClient: asynqClient,
		baseURL:     baseURL,
	}
}

type errorResponse struct {
	Success  bool               `json:"success"`
	Error    string             `json:"error"`
	Kind     pipeline.Kind      `json:"kind"`
	Hint     string             `json:"hint,omitempty"`
	Warnings []pipeline.Warning `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps a pipeline error onto its HTTP status and JSON envelope.
// writeError maps err to its status. Warnings collected before the failure
// are passed through.
func writeError(w http.ResponseWriter, err error, warnings ...pipeline.Warning) {
	kind := pipeline.KindOf(err)
	status := pipeline.HTTPStatus(kind)
	msg := err.Error()
	if kind == pipeline.KindInternal {
		log.Errorf("Internal error: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind, Hint: pipeline.HintOf(err), Warnings: warnings})
}
