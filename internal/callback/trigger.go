package callback

import (
	"context"

	"podcast-pipeline/internal/models"
)

// Options switches individual post-processing steps off.
type Options struct {
	SkipTitle   bool `json:"skip_title_generation"`
	SkipSummary bool `json:"skip_summary_generation"`
	SkipImage   bool `json:"skip_image_generation"`
}

// TriggerResult is what post-processing reports back.
type TriggerResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Episode *models.Episode `json:"episode,omitempty"`
}

// Trigger runs title, summary and image generation for a finished episode.
// Publishing, if any, happens inside the trigger.
type Trigger interface {
	Run(ctx context.Context, ep *models.Episode, opts Options) TriggerResult
}

// Invoker posts a payload to an HTTP endpoint.
type Invoker interface {
	Invoke(ctx context.Context, url string, payload, out any) error
}

// HTTPTrigger calls the post-processing service.
type HTTPTrigger struct {
	invoker Invoker
	url     string
}

func NewHTTPTrigger(invoker Invoker, url string) *HTTPTrigger {
	return &HTTPTrigger{invoker: invoker, url: url}
}

type triggerRequest struct {
	EpisodeID string `json:"episode_id"`
	PodcastID string `json:"podcast_id"`
	Options
}

func (t *HTTPTrigger) Run(ctx context.Context, ep *models.Episode, opts Options) TriggerResult {
	var out TriggerResult
	err := t.invoker.Invoke(ctx, t.url, triggerRequest{EpisodeID: ep.ID, PodcastID: ep.PodcastID, Options: opts}, &out)
	if err != nil {
		return TriggerResult{Message: err.Error()}
	}
	if !out.Success && out.Message == "" {
		out.Message = "post-processing reported no success"
	}
	return out
}
