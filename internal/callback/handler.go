// Package callback handles the completion report the audio worker sends when
// synthesis finishes. The handler authenticates the worker, reconciles the
// episode record and kicks off post-processing. Notification problems after a
// successful run are surfaced as warnings only.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/pipeline"
)

// EpisodeStore is the part of the state store gateway the handler touches.
type EpisodeStore interface {
	GetEpisode(ctx context.Context, id string) (*models.Episode, error)
	SaveEpisodeState(ctx context.Context, ep *models.Episode) error
	RecordAudioCompletion(ctx context.Context, id, audioURL string, duration *int, meta models.Metadata) error
}

// Notifier tells subscribers about a newly published episode.
type Notifier interface {
	EpisodePublished(ctx context.Context, ep *models.Episode) error
}

// Callback is one inbound completion report.
type Callback struct {
	EpisodeID string
	Secret    string
	Body      []byte
}

// Payload is the JSON body sent by the audio worker.
type Payload struct {
	Status   models.Status `json:"status"`
	AudioURL string        `json:"audio_url"`
	Duration *float64      `json:"duration"`
	Error    string        `json:"error"`
}

// Result is the handler's own outcome. Warnings carry side effects that
// failed without affecting Success.
type Result struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message,omitempty"`
	Episode  *models.Episode    `json:"episode,omitempty"`
	Skipped  bool               `json:"skipped,omitempty"`
	Warnings []pipeline.Warning `json:"warnings,omitempty"`
}

type Handler struct {
	store    EpisodeStore
	auth     Authenticator
	trigger  Trigger
	notifier Notifier
	cfg      config.PostProcess
	now      func() time.Time
}

// New builds a Handler. notifier may be nil when email is not configured.
func New(store EpisodeStore, auth Authenticator, trigger Trigger, notifier Notifier, cfg config.PostProcess) *Handler {
	return &Handler{
		store:    store,
		auth:     auth,
		trigger:  trigger,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Handle processes one completion report.
func (h *Handler) Handle(ctx context.Context, cb Callback) (Result, error) {
	const op = "audio-complete"

	if auth := h.auth.Authenticate(cb.Secret); !auth.Valid {
		return Result{}, pipeline.Wrap(pipeline.KindUnauthorized, op, auth.Err, "invalid callback secret")
	}

	p, err := decodePayload(cb.Body)
	if err != nil {
		return Result{}, err
	}

	ep, err := h.lookup(ctx, cb.EpisodeID)
	if err != nil {
		return Result{}, err
	}

	logger := log.WithFields(log.Fields{"episode_id": ep.ID, "reported": p.Status})
	if ep.Status != models.StatusCompleted {
		logger.Warnf("completion callback while episode is %s, continuing", ep.Status)
	}

	if p.Status == models.StatusFailed {
		reason := p.Error
		if reason == "" {
			reason = "audio synthesis failed"
		}
		ep.Status = models.StatusFailed
		ep.Metadata.RecordFailure(reason, h.now())
		if err := h.store.SaveEpisodeState(ctx, ep); err != nil {
			return Result{}, pipeline.Wrap(pipeline.KindInternal, op, err, "failed to record worker failure")
		}
		logger.Warnf("audio worker reported failure: %s", reason)
		return Result{Success: true, Message: "failure recorded", Episode: ep}, nil
	}

	switch {
	case !ep.HasAudio():
		if err := h.reconcile(ctx, ep, p); err != nil {
			return Result{}, err
		}
	case ep.Status != models.StatusCompleted && ep.Status != models.StatusPublished:
		if err := h.markCompleted(ctx, ep); err != nil {
			return Result{}, err
		}
	}

	if !h.cfg.Enabled {
		logger.Info("post-processing disabled, acknowledging callback")
		return Result{Success: true, Skipped: true, Message: "post-processing disabled", Episode: ep}, nil
	}

	tr := h.trigger.Run(ctx, ep, Options{
		SkipTitle:   h.cfg.SkipTitle,
		SkipSummary: h.cfg.SkipSummary,
		SkipImage:   h.cfg.SkipImage,
	})
	if !tr.Success {
		logger.Errorf("post-processing failed: %s", tr.Message)
		return Result{}, pipeline.Errorf(pipeline.KindPostProcessingFailed, op, "post-processing failed: %s", tr.Message)
	}

	res := Result{Success: true, Message: tr.Message, Episode: tr.Episode}
	fresh, err := h.store.GetEpisode(ctx, ep.ID)
	if err != nil {
		logger.Warnf("failed to re-read episode after post-processing: %v", err)
	} else {
		res.Episode = fresh
	}
	if res.Episode == nil {
		res.Episode = ep
	}

	if res.Episode.Status == models.StatusPublished && h.notifier != nil {
		if err := h.notifier.EpisodePublished(ctx, res.Episode); err != nil {
			w := pipeline.Warnf(pipeline.KindDownstreamNotificationFailed, "failed to notify subscribers: %v", err)
			res.Warnings = append(res.Warnings, w)
			logger.Warn(w.Message)
		}
	}

	logger.WithField("status", res.Episode.Status).Info("completion callback processed")
	return res, nil
}

// Health resolves the episode lookup only.
func (h *Handler) Health(ctx context.Context, episodeID string) (*models.Episode, error) {
	return h.lookup(ctx, episodeID)
}

func (h *Handler) lookup(ctx context.Context, episodeID string) (*models.Episode, error) {
	const op = "audio-complete"

	ep, err := h.store.GetEpisode(ctx, episodeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, pipeline.Wrap(pipeline.KindNotFound, op, err, "episode not found")
	}
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindInternal, op, err, "failed to load episode")
	}
	if ep.PodcastID == "" {
		return nil, pipeline.Errorf(pipeline.KindDataIntegrity, op, "episode %s has no podcast", ep.ID)
	}
	return ep, nil
}

// reconcile writes what the worker reported when its own update has not
// reached the record yet.
func (h *Handler) reconcile(ctx context.Context, ep *models.Episode, p Payload) error {
	now := h.now().UTC()
	var duration *int
	if p.Duration != nil {
		d := int(math.Round(*p.Duration))
		duration = &d
		ep.Metadata.AudioDuration = d
	}
	ep.Metadata.CompletedAt = &now

	if err := h.store.RecordAudioCompletion(ctx, ep.ID, p.AudioURL, duration, ep.Metadata); err != nil {
		return pipeline.Wrap(pipeline.KindInternal, "audio-complete", err, "failed to record audio completion")
	}

	audioURL := p.AudioURL
	ep.AudioURL = &audioURL
	ep.Duration = duration
	ep.Status = models.StatusCompleted
	log.WithField("episode_id", ep.ID).Info("recorded audio completion from callback")
	return nil
}

// markCompleted moves a record that already references audio to completed.
func (h *Handler) markCompleted(ctx context.Context, ep *models.Episode) error {
	previous := ep.Status
	ep.Status = models.StatusCompleted
	if ep.Metadata.CompletedAt == nil {
		now := h.now().UTC()
		ep.Metadata.CompletedAt = &now
	}
	if err := h.store.SaveEpisodeState(ctx, ep); err != nil {
		return pipeline.Wrap(pipeline.KindInternal, "audio-complete", err, "failed to mark episode completed")
	}
	log.WithFields(log.Fields{"episode_id": ep.ID, "previous": previous}).Info("marked episode completed from callback")
	return nil
}

func decodePayload(body []byte) (Payload, error) {
	const op = "audio-complete"

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, pipeline.Wrap(pipeline.KindInvalidPayload, op, err, "malformed callback body")
	}
	switch p.Status {
	case models.StatusCompleted:
		if p.AudioURL == "" {
			return p, pipeline.Errorf(pipeline.KindInvalidPayload, op, "completed callback without audio_url")
		}
	case models.StatusFailed:
	default:
		return p, pipeline.Errorf(pipeline.KindInvalidPayload, op, "unsupported status %q", p.Status)
	}
	if p.Duration != nil && *p.Duration < 0 {
		return p, pipeline.Errorf(pipeline.KindInvalidPayload, op, "invalid duration %v", *p.Duration)
	}
	return p, nil
}
