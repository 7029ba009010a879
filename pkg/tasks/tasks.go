package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeContentFetch        = "content:fetch"
	TypeRegenerateEpisode   = "episode:regenerate"
	TypeRetryFailedEpisodes = "episodes:retry-failed"
)

// PayloadVersion is stamped on every message this service produces.
const PayloadVersion = 1

// Trigger sources seen on the content queue. The scheduled collector and the
// regeneration path share the queue, so the consumer tells them apart here.
const (
	TriggerScheduled    = "scheduled"
	TriggerRegeneration = "regeneration"
)

// QueueMessage is the envelope placed on a shared queue. Attributes repeat the
// identifiers from Body so consumers can filter without decoding it.
type QueueMessage struct {
	Body       json.RawMessage   `json:"body"`
	Attributes map[string]string `json:"attributes"`
}

// ContentFetchPayload asks the content worker to collect source material for
// an episode's date range.
type ContentFetchPayload struct {
	Version         int       `json:"payload_version"`
	RequestID       string    `json:"request_id"`
	PodcastID       string    `json:"podcast_id"`
	EpisodeID       string    `json:"episode_id"`
	PodcastConfigID string    `json:"podcast_config_id"`
	Timestamp       time.Time `json:"timestamp"`
	TriggerSource   string    `json:"trigger_source"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	ContentSource   string    `json:"content_source,omitempty"`
	TelegramChannel string    `json:"telegram_channel,omitempty"`
}

func NewContentFetchTask(p ContentFetchPayload, queue string) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(QueueMessage{
		Body: body,
		Attributes: map[string]string{
			"podcast_id":     p.PodcastID,
			"episode_id":     p.EpisodeID,
			"trigger_source": p.TriggerSource,
		},
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeContentFetch, msg, asynq.Queue(queue)), nil
}

// RegenerateEpisodeTaskPayload runs one orchestrated regeneration in the
// background worker.
type RegenerateEpisodeTaskPayload struct {
	EpisodeID string
	Mode      string
	Retry     bool
}

func NewRegenerateEpisodeTask(episodeID, mode string, retry bool) (*asynq.Task, error) {
	payload, err := json.Marshal(RegenerateEpisodeTaskPayload{
		EpisodeID: episodeID,
		Mode:      mode,
		Retry:     retry,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRegenerateEpisode, payload), nil
}

func NewRetryFailedEpisodesTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRetryFailedEpisodes, nil), nil
}
