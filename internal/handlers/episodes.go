package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/orchestrator"
	"podcast-pipeline/internal/pipeline"
	"podcast-pipeline/pkg/tasks"
)

type regenerateRequest struct {
	Mode string `json:"mode"`
}

func decodeMode(r *http.Request) (pipeline.Mode, error) {
	var body regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", pipeline.Wrap(pipeline.KindInvalidPayload, "regenerate", err, "malformed request body")
	}
	return pipeline.ParseMode(body.Mode)
}

// Regenerate runs a regeneration and reports whether the first worker
// accepted it.
func (h *Handlers) Regenerate(w http.ResponseWriter, r *http.Request) {
	episodeID := mux.Vars(r)["id"]

	mode, err := decodeMode(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.regen.Regenerate(r.Context(), orchestrator.Request{EpisodeID: episodeID, Mode: mode})
	if err != nil {
		writeError(w, err, res.Warnings...)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RegenerateAsync queues the regeneration for the background worker.
func (h *Handlers) RegenerateAsync(w http.ResponseWriter, r *http.Request) {
	episodeID := mux.Vars(r)["id"]

	mode, err := decodeMode(r)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := tasks.NewRegenerateEpisodeTask(episodeID, string(mode), false)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.asynqClient.EnqueueContext(r.Context(), task)
	if err != nil {
		writeError(w, pipeline.Wrap(pipeline.KindDispatchFailed, "regenerate", err, "failed to enqueue regeneration"))
		return
	}

	log.WithFields(log.Fields{"episode_id": episodeID, "mode": mode, "task_id": info.ID}).Info("regeneration queued")
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "mode": mode, "task_id": info.ID})
}

// episodeStatus is the polling view of an episode.
type episodeStatus struct {
	ID                  string        `json:"id"`
	PodcastID           string        `json:"podcast_id"`
	Status              models.Status `json:"status"`
	Title               *string       `json:"title,omitempty"`
	ScriptURL           *string       `json:"script_url,omitempty"`
	AudioURL            *string       `json:"audio_url,omitempty"`
	Error               string        `json:"error,omitempty"`
	RegenerationMode    string        `json:"regeneration_mode,omitempty"`
	ProcessingStartedAt *time.Time    `json:"processing_started_at,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func statusOf(ep *models.Episode) episodeStatus {
	return episodeStatus{
		ID:                  ep.ID,
		PodcastID:           ep.PodcastID,
		Status:              ep.Status,
		Title:               ep.Title,
		ScriptURL:           ep.ScriptURL,
		AudioURL:            ep.AudioURL,
		Error:               ep.Metadata.Error,
		RegenerationMode:    ep.Metadata.RegenerationMode,
		ProcessingStartedAt: ep.Metadata.ProcessingStartedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

// EpisodeStatus returns the latest committed status of one episode.
func (h *Handlers) EpisodeStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	ep, err := h.episodes.GetEpisode(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, pipeline.Wrap(pipeline.KindNotFound, "status", err, "episode not found"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "episode": statusOf(ep)})
}

// PodcastStatuses returns the status of every episode of a podcast.
func (h *Handlers) PodcastStatuses(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	episodes, err := h.episodes.ListEpisodeStatuses(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]episodeStatus, 0, len(episodes))
	for i := range episodes {
		out = append(out, statusOf(&episodes[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "episodes": out})
}
