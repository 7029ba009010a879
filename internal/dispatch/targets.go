package dispatch

import (
	"time"

	"podcast-pipeline/internal/models"
	"podcast-pipeline/pkg/tasks"
)

// Stage names a worker in the generation chain.
type Stage string

const (
	StageContentFetch     Stage = "content_fetch"
	StageScriptGeneration Stage = "script_generation"
	StageAudioSynthesis   Stage = "audio_synthesis"
)

// Transport is how a stage's worker is reached.
type Transport string

const (
	TransportQueue  Transport = "queue"
	TransportDirect Transport = "direct"
)

// Target is a unit of work for exactly one worker. The set of targets is
// closed: ContentFetch, ScriptGeneration and AudioSynthesis.
type Target interface {
	Stage() Stage
	Transport() Transport
	EpisodeID() string
	isTarget()
}

// ContentFetch is enqueued on the shared content queue.
type ContentFetch struct {
	Payload tasks.ContentFetchPayload
}

func (ContentFetch) Stage() Stage         { return StageContentFetch }
func (ContentFetch) Transport() Transport { return TransportQueue }
func (t ContentFetch) EpisodeID() string  { return t.Payload.EpisodeID }
func (ContentFetch) isTarget()            {}

// ScriptGenerationPayload is the body posted to the script worker.
type ScriptGenerationPayload struct {
	Version         int       `json:"payload_version"`
	RequestID       string    `json:"request_id"`
	EpisodeID       string    `json:"episode_id"`
	PodcastID       string    `json:"podcast_id"`
	PodcastConfigID string    `json:"podcast_config_id"`
	Timestamp       time.Time `json:"timestamp"`
	TelegramDataURL string    `json:"telegram_data_url"`
}

// ScriptGeneration is invoked directly on the script worker.
type ScriptGeneration struct {
	Payload ScriptGenerationPayload
}

func (ScriptGeneration) Stage() Stage         { return StageScriptGeneration }
func (ScriptGeneration) Transport() Transport { return TransportDirect }
func (t ScriptGeneration) EpisodeID() string  { return t.Payload.EpisodeID }
func (ScriptGeneration) isTarget()            {}

// GenerationConfig is the podcast configuration in the shape the audio
// worker expects.
type GenerationConfig struct {
	Language        string   `json:"language"`
	PodcastName     string   `json:"podcast_name"`
	SpeakerRoles    []string `json:"speaker_roles"`
	CreativityLevel float64  `json:"creativity_level"`
	Style           string   `json:"conversation_style"`
}

// AudioSynthesisPayload is the body posted to the audio worker.
type AudioSynthesisPayload struct {
	Version         int              `json:"payload_version"`
	RequestID       string           `json:"request_id"`
	EpisodeID       string           `json:"episode_id"`
	PodcastID       string           `json:"podcast_id"`
	PodcastConfigID string           `json:"podcast_config_id"`
	Timestamp       time.Time        `json:"timestamp"`
	ScriptURL       string           `json:"script_url"`
	Config          GenerationConfig `json:"config"`
}

// AudioSynthesis is invoked directly on the audio worker.
type AudioSynthesis struct {
	Payload AudioSynthesisPayload
}

func (AudioSynthesis) Stage() Stage         { return StageAudioSynthesis }
func (AudioSynthesis) Transport() Transport { return TransportDirect }
func (t AudioSynthesis) EpisodeID() string  { return t.Payload.EpisodeID }
func (AudioSynthesis) isTarget()            {}

const dateLayout = "2006-01-02"

// NewContentFetch builds the content-collection target for an episode's
// recorded date range.
func NewContentFetch(ep *models.Episode, pc *models.PodcastConfig) ContentFetch {
	p := tasks.ContentFetchPayload{
		PodcastID:       ep.PodcastID,
		EpisodeID:       ep.ID,
		PodcastConfigID: pc.ID,
		TriggerSource:   tasks.TriggerRegeneration,
		ContentSource:   pc.ContentSource,
		TelegramChannel: pc.TelegramChannel,
	}
	if ep.ContentStartDate != nil {
		p.StartDate = ep.ContentStartDate.Format(dateLayout)
	}
	if ep.ContentEndDate != nil {
		p.EndDate = ep.ContentEndDate.Format(dateLayout)
	}
	return ContentFetch{Payload: p}
}

// NewScriptGeneration builds the script target from an existing content artifact.
func NewScriptGeneration(ep *models.Episode, pc *models.PodcastConfig, contentRef string) ScriptGeneration {
	return ScriptGeneration{Payload: ScriptGenerationPayload{
		EpisodeID:       ep.ID,
		PodcastID:       ep.PodcastID,
		PodcastConfigID: pc.ID,
		TelegramDataURL: contentRef,
	}}
}

// NewAudioSynthesis builds the audio target from an existing script artifact.
func NewAudioSynthesis(ep *models.Episode, podcast *models.Podcast, pc *models.PodcastConfig, scriptRef string) AudioSynthesis {
	return AudioSynthesis{Payload: AudioSynthesisPayload{
		EpisodeID:       ep.ID,
		PodcastID:       ep.PodcastID,
		PodcastConfigID: pc.ID,
		ScriptURL:       scriptRef,
		Config: GenerationConfig{
			Language:        NormalizeLanguage(pc.Language),
			PodcastName:     podcast.Name,
			SpeakerRoles:    append([]string(nil), pc.SpeakerRoles...),
			CreativityLevel: pc.CreativityLevel,
			Style:           pc.Style,
		},
	}}
}
