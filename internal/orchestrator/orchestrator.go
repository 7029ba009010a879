// Package orchestrator re-runs an episode through the generation pipeline at
// a chosen granularity. It checks that the artifacts the granularity depends
// on still exist, purges what the new run will replace, resets the episode to
// pending and dispatches the first worker of the chain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/dispatch"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/pipeline"
	"podcast-pipeline/internal/storage"
)

// EpisodeStore is the slice of the state store gateway the orchestrator uses.
type EpisodeStore interface {
	GetEpisode(ctx context.Context, id string) (*models.Episode, error)
	GetPodcast(ctx context.Context, id string) (*models.Podcast, error)
	GetPodcastConfig(ctx context.Context, podcastID string) (*models.PodcastConfig, error)
	SaveEpisodeState(ctx context.Context, ep *models.Episode) error
}

// ArtifactStore lists and purges episode artifacts.
type ArtifactStore interface {
	Bucket() string
	Prefix(podcastID, episodeID string) string
	List(ctx context.Context, podcastID, episodeID string) ([]storage.Artifact, error)
	DeleteByCategory(ctx context.Context, podcastID, episodeID string, categories ...storage.Category) storage.DeleteReport
	DeleteAll(ctx context.Context, podcastID, episodeID string) storage.DeleteReport
}

// Dispatcher hands a target to its worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, t dispatch.Target) error
}

// Request asks for one regeneration of an episode. Retry marks requests
// coming from the failed-episode sweep rather than an operator.
type Request struct {
	EpisodeID string
	Mode      pipeline.Mode
	Retry     bool
}

// Result describes an accepted regeneration. Success means the first worker
// accepted the job, not that the episode has been regenerated.
type Result struct {
	Success      bool               `json:"success"`
	Mode         pipeline.Mode      `json:"mode"`
	Stage        dispatch.Stage     `json:"stage"`
	DeletedCount int                `json:"deleted_count"`
	Warnings     []pipeline.Warning `json:"warnings,omitempty"`
}

type Orchestrator struct {
	store      EpisodeStore
	artifacts  ArtifactStore
	dispatcher Dispatcher
	now        func() time.Time
}

func New(store EpisodeStore, artifacts ArtifactStore, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{
		store:      store,
		artifacts:  artifacts,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for metadata timestamps.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// episodeContext is everything a regeneration needs, loaded up front.
type episodeContext struct {
	episode   *models.Episode
	podcast   *models.Podcast
	config    *models.PodcastConfig
	artifacts []storage.Artifact
}

// plan is the outcome of the precondition check for one mode.
type plan struct {
	target     dispatch.Target
	categories []storage.Category // nil purges everything
	contentRef string
	scriptRef  string
}

// Regenerate runs one regeneration request. Every precondition is checked
// before anything is deleted or dispatched.
func (o *Orchestrator) Regenerate(ctx context.Context, req Request) (Result, error) {
	const op = "regenerate"

	ec, err := o.load(ctx, req.EpisodeID)
	if err != nil {
		return Result{}, err
	}

	p, err := o.plan(req.Mode, ec)
	if req.Retry {
		req.Mode, p, err = o.stepDown(req.Mode, p, err, ec)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"episode_id": req.EpisodeID,
			"mode":       req.Mode,
		}).Warnf("regeneration rejected: %v", err)
		if req.Retry {
			o.recordRejectedRetry(ctx, ec.episode, err)
		}
		return Result{}, err
	}

	ep := ec.episode
	result := Result{Mode: req.Mode, Stage: p.target.Stage()}

	var report storage.DeleteReport
	if p.categories == nil {
		report = o.artifacts.DeleteAll(ctx, ep.PodcastID, ep.ID)
	} else {
		report = o.artifacts.DeleteByCategory(ctx, ep.PodcastID, ep.ID, p.categories...)
	}
	result.DeletedCount = report.Deleted
	if !report.Success() {
		w := pipeline.Warnf(pipeline.KindPartialArtifactDeletion,
			"%d artifact(s) could not be deleted: %v", len(report.Errors), report.Err())
		result.Warnings = append(result.Warnings, w)
		log.WithField("episode_id", ep.ID).Warn(w.Message)
	}

	o.reset(ep, req, p)
	if err := o.store.SaveEpisodeState(ctx, ep); err != nil {
		return result, pipeline.Wrap(pipeline.KindInternal, op, err, "failed to reset episode state")
	}

	if err := o.dispatcher.Dispatch(ctx, p.target); err != nil {
		ep.Status = models.StatusFailed
		ep.Metadata.RecordFailure(fmt.Sprintf("%s dispatch failed: %v", p.target.Stage(), err), o.now())
		if saveErr := o.store.SaveEpisodeState(ctx, ep); saveErr != nil {
			log.WithField("episode_id", ep.ID).Errorf("failed to record dispatch failure: %v", saveErr)
		}
		return result, pipeline.Wrap(pipeline.KindDispatchFailed, op, err,
			fmt.Sprintf("failed to dispatch %s", p.target.Stage())).
			WithHint("the episode was marked failed; retry the regeneration once the worker is reachable")
	}

	result.Success = true
	log.WithFields(log.Fields{
		"episode_id": ep.ID,
		"mode":       req.Mode,
		"stage":      result.Stage,
		"deleted":    result.DeletedCount,
		"retry":      req.Retry,
	}).Info("episode regeneration dispatched")
	return result, nil
}

func (o *Orchestrator) load(ctx context.Context, episodeID string) (*episodeContext, error) {
	const op = "regenerate"

	ep, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, classifyLookup(op, "episode", err)
	}
	if ep.PodcastID == "" {
		return nil, pipeline.Errorf(pipeline.KindDataIntegrity, op, "episode %s has no podcast", ep.ID)
	}
	podcast, err := o.store.GetPodcast(ctx, ep.PodcastID)
	if err != nil {
		return nil, classifyLookup(op, "podcast", err)
	}
	cfg, err := o.store.GetPodcastConfig(ctx, ep.PodcastID)
	if err != nil {
		return nil, classifyLookup(op, "podcast config", err)
	}

	artifacts, err := o.artifacts.List(ctx, ep.PodcastID, ep.ID)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindInternal, op, err, "failed to list episode artifacts")
	}
	return &episodeContext{episode: ep, podcast: podcast, config: cfg, artifacts: artifacts}, nil
}

func (o *Orchestrator) plan(mode pipeline.Mode, ec *episodeContext) (plan, error) {
	const op = "regenerate"
	ep := ec.episode

	switch mode {
	case pipeline.ModeFull:
		if ep.ContentStartDate == nil || ep.ContentEndDate == nil {
			return plan{}, pipeline.Errorf(pipeline.KindPreconditionFailed, op,
				"episode %s has no content date range", ep.ID).
				WithHint("set the episode's content start and end dates before regenerating")
		}
		return plan{target: dispatch.NewContentFetch(ep, ec.config)}, nil

	case pipeline.ModeScriptAudio:
		ref := o.contentRef(ec)
		if ref == "" {
			return plan{}, pipeline.Errorf(pipeline.KindPreconditionFailed, op,
				"episode %s has no collected content", ep.ID).
				WithHint("use Full Regeneration instead")
		}
		return plan{
			target:     dispatch.NewScriptGeneration(ep, ec.config, ref),
			categories: []storage.Category{storage.CategoryScript, storage.CategoryAudio},
			contentRef: ref,
		}, nil

	case pipeline.ModeAudioOnly:
		ref := ep.ScriptRef()
		if ref == "" {
			if ep.Status == models.StatusScriptReady {
				return plan{}, pipeline.Errorf(pipeline.KindDataIntegrity, op,
					"episode %s is %s but has no script reference", ep.ID, ep.Status).
					WithHint("use Script + Audio Regeneration to rebuild the script")
			}
			return plan{}, pipeline.Errorf(pipeline.KindPreconditionFailed, op,
				"episode %s has no script yet", ep.ID).
				WithHint("use Script + Audio Regeneration instead")
		}
		if o.missingUnderPrefix(ref, ec) {
			return plan{}, pipeline.Errorf(pipeline.KindPreconditionFailed, op,
				"script %s no longer exists", ref).
				WithHint("use Script + Audio Regeneration instead")
		}
		return plan{
			target:     dispatch.NewAudioSynthesis(ep, ec.podcast, ec.config, ref),
			categories: []storage.Category{storage.CategoryAudio},
			scriptRef:  ref,
		}, nil
	}
	return plan{}, pipeline.Errorf(pipeline.KindInvalidPayload, op, "unknown regeneration mode %q", mode)
}

// stepDown moves a retry to the next coarser mode while the current one is
// missing the artifact it starts from.
func (o *Orchestrator) stepDown(mode pipeline.Mode, p plan, err error, ec *episodeContext) (pipeline.Mode, plan, error) {
	for err != nil && (pipeline.Is(err, pipeline.KindPreconditionFailed) || pipeline.Is(err, pipeline.KindDataIntegrity)) {
		next, ok := coarser(mode)
		if !ok {
			break
		}
		log.WithField("episode_id", ec.episode.ID).Infof("retry falling back from %s to %s: %v", mode, next, err)
		mode = next
		p, err = o.plan(mode, ec)
	}
	return mode, p, err
}

func coarser(mode pipeline.Mode) (pipeline.Mode, bool) {
	switch mode {
	case pipeline.ModeAudioOnly:
		return pipeline.ModeScriptAudio, true
	case pipeline.ModeScriptAudio:
		return pipeline.ModeFull, true
	}
	return "", false
}

// recordRejectedRetry counts a retry that no mode could start, so the sweep
// eventually gives up on the episode.
func (o *Orchestrator) recordRejectedRetry(ctx context.Context, ep *models.Episode, cause error) {
	ep.Status = models.StatusFailed
	ep.Metadata.RetryCount++
	ep.Metadata.RecordFailure(cause.Error(), o.now())
	if err := o.store.SaveEpisodeState(ctx, ep); err != nil {
		log.WithField("episode_id", ep.ID).Errorf("failed to record rejected retry: %v", err)
	}
}

// contentRef prefers the content location recorded in metadata while the
// object is still there, then falls back to any listed content artifact.
func (o *Orchestrator) contentRef(ec *episodeContext) string {
	if ref := ec.episode.Metadata.TelegramDataURL; ref != "" {
		if key, ok := storage.KeyFromRef(ref, o.artifacts.Bucket()); ok && listed(ec.artifacts, key) {
			return ref
		}
	}
	for _, a := range ec.artifacts {
		if a.Category == storage.CategoryContent {
			return fmt.Sprintf("s3://%s/%s", o.artifacts.Bucket(), a.Key)
		}
	}
	return ""
}

// missingUnderPrefix reports whether ref names an object inside the episode
// prefix that is not there anymore. References elsewhere can't be checked and
// are trusted.
func (o *Orchestrator) missingUnderPrefix(ref string, ec *episodeContext) bool {
	key, ok := storage.KeyFromRef(ref, o.artifacts.Bucket())
	if !ok || !strings.HasPrefix(key, o.artifacts.Prefix(ec.episode.PodcastID, ec.episode.ID)) {
		return false
	}
	return !listed(ec.artifacts, key)
}

// reset puts the episode back into pending with only the references that
// survive the purge.
func (o *Orchestrator) reset(ep *models.Episode, req Request, p plan) {
	now := o.now().UTC()

	ep.Status = models.StatusPending
	ep.AudioURL = nil
	ep.Duration = nil
	ep.Metadata.AudioDuration = 0
	ep.Metadata.CompletedAt = nil

	switch req.Mode {
	case pipeline.ModeFull:
		ep.ScriptURL = nil
		ep.CoverImage = nil
		ep.Metadata.ScriptURL = ""
		ep.Metadata.TelegramDataURL = ""
	case pipeline.ModeScriptAudio:
		ep.ScriptURL = nil
		ep.Metadata.ScriptURL = ""
		ep.Metadata.TelegramDataURL = p.contentRef
	case pipeline.ModeAudioOnly:
		ep.Metadata.ScriptURL = p.scriptRef
	}

	ep.Metadata.ClearFailure()
	ep.Metadata.ProcessingStartedAt = &now
	ep.Metadata.RegenerationMode = string(req.Mode)
	ep.Metadata.RegeneratedAt = &now
	if req.Retry {
		ep.Metadata.RetryCount++
	} else {
		ep.Metadata.RetryCount = 0
	}
}

// SelectRetryMode picks the cheapest mode that can rebuild a failed episode
// from the artifacts it still references. Retries that find the artifact gone
// fall back to coarser modes inside Regenerate.
func SelectRetryMode(ep *models.Episode) pipeline.Mode {
	switch {
	case ep.ScriptRef() != "":
		return pipeline.ModeAudioOnly
	case ep.Metadata.TelegramDataURL != "":
		return pipeline.ModeScriptAudio
	default:
		return pipeline.ModeFull
	}
}

func classifyLookup(op, what string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return pipeline.Wrap(pipeline.KindNotFound, op, err, what+" not found")
	}
	return pipeline.Wrap(pipeline.KindInternal, op, err, "failed to load "+what)
}

func listed(artifacts []storage.Artifact, key string) bool {
	for _, a := range artifacts {
		if a.Key == key {
			return true
		}
	}
	return false
}
