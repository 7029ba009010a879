package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/orchestrator"
	"podcast-pipeline/internal/pipeline"
	"podcast-pipeline/pkg/tasks"
)

// FailedEpisodeLister finds episodes the retry sweep should pick up.
type FailedEpisodeLister interface {
	ListFailedEpisodes(ctx context.Context, maxRetries, limit int) ([]models.Episode, error)
}

// Regenerator runs one regeneration.
type Regenerator interface {
	Regenerate(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

type TaskHandler struct {
	asynqClient tasks.TaskEnqueuer
	episodes    FailedEpisodeLister
	regen       Regenerator
	retry       config.Retry
}

func NewTaskHandler(client tasks.TaskEnqueuer, episodes FailedEpisodeLister, regen Regenerator, retry config.Retry) *TaskHandler {
	return &TaskHandler{asynqClient: client, episodes: episodes, regen: regen, retry: retry}
}

// HandleRetryFailedEpisodesTask queues a regeneration for every failed
// episode that still has retries left, in the cheapest mode its surviving
// artifacts allow.
func (h *TaskHandler) HandleRetryFailedEpisodesTask(ctx context.Context, t *asynq.Task) error {
	log.Info("Retrying failed episodes...")

	episodes, err := h.episodes.ListFailedEpisodes(ctx, h.retry.MaxAttempts, h.retry.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list failed episodes: %w", err)
	}

	queued := 0
	for i := range episodes {
		ep := &episodes[i]
		mode := orchestrator.SelectRetryMode(ep)

		task, err := tasks.NewRegenerateEpisodeTask(ep.ID, string(mode), true)
		if err != nil {
			log.Printf("failed to create regenerate task for episode %s: %v", ep.ID, err)
			continue
		}

		// One task per episode and attempt, so overlapping sweeps don't double up.
		taskID := fmt.Sprintf("regenerate:%s:%d", ep.ID, ep.Metadata.RetryCount+1)
		_, err = h.asynqClient.EnqueueContext(ctx, task, asynq.TaskID(taskID))
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			continue
		}
		if err != nil {
			log.Printf("failed to enqueue regenerate task for episode %s: %v", ep.ID, err)
			continue
		}
		queued++
	}

	log.WithFields(log.Fields{"candidates": len(episodes), "queued": queued}).Info("Finished retrying failed episodes.")
	return nil
}

// HandleRegenerateEpisodeTask runs a queued regeneration. Errors that another
// attempt can't fix are not retried by asynq; dispatch failures are left to
// the retry sweep since the episode is already marked failed.
func (h *TaskHandler) HandleRegenerateEpisodeTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.RegenerateEpisodeTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	mode, err := pipeline.ParseMode(p.Mode)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	res, err := h.regen.Regenerate(ctx, orchestrator.Request{EpisodeID: p.EpisodeID, Mode: mode, Retry: p.Retry})
	if err != nil {
		logger := log.WithFields(log.Fields{"episode_id": p.EpisodeID, "mode": mode, "kind": pipeline.KindOf(err)})
		switch pipeline.KindOf(err) {
		case pipeline.KindInternal:
			logger.Errorf("regeneration failed, will retry: %v", err)
			return err
		default:
			logger.Warnf("regeneration failed: %v", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}

	log.WithFields(log.Fields{
		"episode_id": p.EpisodeID,
		"mode":       mode,
		"stage":      res.Stage,
		"warnings":   len(res.Warnings),
	}).Info("queued regeneration dispatched")
	return nil
}
