// Package dispatch hands work to the external pipeline workers. Content
// collection goes through the shared asynq queue; script generation and audio
// synthesis are invoked directly. Failures are returned to the caller as-is.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
	"podcast-pipeline/pkg/tasks"
)

// Invoker posts a payload to a worker endpoint.
type Invoker interface {
	Invoke(ctx context.Context, url string, payload, out any) error
}

// Dispatcher sends Targets to their workers.
type Dispatcher struct {
	enqueuer tasks.TaskEnqueuer
	invoker  Invoker
	cfg      config.Workers

	now   func() time.Time
	newID func() string
}

func New(enqueuer tasks.TaskEnqueuer, invoker Invoker, cfg config.Workers) *Dispatcher {
	return &Dispatcher{
		enqueuer: enqueuer,
		invoker:  invoker,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock replaces the time source stamped into payloads.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch routes t to its worker over the target's transport.
func (d *Dispatcher) Dispatch(ctx context.Context, t Target) error {
	switch t := t.(type) {
	case ContentFetch:
		return d.DispatchContentFetch(ctx, t.Payload)
	case ScriptGeneration:
		return d.DispatchScriptGeneration(ctx, t.Payload)
	case AudioSynthesis:
		return d.DispatchAudioSynthesis(ctx, t.Payload)
	default:
		return fmt.Errorf("unknown dispatch target %T", t)
	}
}

// DispatchContentFetch enqueues a content collection request.
func (d *Dispatcher) DispatchContentFetch(ctx context.Context, p tasks.ContentFetchPayload) error {
	p.Version = tasks.PayloadVersion
	p.RequestID = d.newID()
	p.Timestamp = d.now().UTC()
	if p.TriggerSource == "" {
		p.TriggerSource = tasks.TriggerRegeneration
	}

	task, err := tasks.NewContentFetchTask(p, d.cfg.ContentQueue)
	if err != nil {
		return fmt.Errorf("failed to create content fetch task: %w", err)
	}
	info, err := d.enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue content fetch task: %w", err)
	}

	log.WithFields(log.Fields{
		"episode_id": p.EpisodeID,
		"request_id": p.RequestID,
		"task_id":    info.ID,
		"queue":      info.Queue,
	}).Info("content fetch enqueued")
	return nil
}

// DispatchScriptGeneration invokes the script worker.
func (d *Dispatcher) DispatchScriptGeneration(ctx context.Context, p ScriptGenerationPayload) error {
	p.Version = tasks.PayloadVersion
	p.RequestID = d.newID()
	p.Timestamp = d.now().UTC()

	if err := d.invoker.Invoke(ctx, d.cfg.ScriptWorkerURL, p, nil); err != nil {
		return fmt.Errorf("failed to invoke script worker: %w", err)
	}
	log.WithFields(log.Fields{"episode_id": p.EpisodeID, "request_id": p.RequestID}).Info("script generation dispatched")
	return nil
}

// DispatchAudioSynthesis invokes the audio worker.
func (d *Dispatcher) DispatchAudioSynthesis(ctx context.Context, p AudioSynthesisPayload) error {
	p.Version = tasks.PayloadVersion
	p.RequestID = d.newID()
	p.Timestamp = d.now().UTC()

	if err := d.invoker.Invoke(ctx, d.cfg.AudioWorkerURL, p, nil); err != nil {
		return fmt.Errorf("failed to invoke audio worker: %w", err)
	}
	log.WithFields(log.Fields{
		"episode_id": p.EpisodeID,
		"request_id": p.RequestID,
		"language":   p.Config.Language,
	}).Info("audio synthesis dispatched")
	return nil
}
