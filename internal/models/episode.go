package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an episode in the generation pipeline.
type Status string

const (
	StatusPending          Status = "pending"
	StatusContentCollected Status = "content_collected"
	StatusScriptReady      Status = "script_ready"
	StatusProcessing       Status = "processing"
	StatusCompleted        Status = "completed"
	StatusPublished        Status = "published"
	StatusFailed           Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusContentCollected, StatusScriptReady, StatusProcessing,
		StatusCompleted, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no worker is expected to advance the episode further.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Episode is the unit of work driven through the pipeline.
type Episode struct {
	ID               string     `db:"id" json:"id"`
	PodcastID        string     `db:"podcast_id" json:"podcast_id"`
	Status           Status     `db:"status" json:"status"`
	Title            *string    `db:"title" json:"title,omitempty"`
	Description      *string    `db:"description" json:"description,omitempty"`
	ContentStartDate *time.Time `db:"content_start_date" json:"content_start_date,omitempty"`
	ContentEndDate   *time.Time `db:"content_end_date" json:"content_end_date,omitempty"`
	ScriptURL        *string    `db:"script_url" json:"script_url,omitempty"`
	AudioURL         *string    `db:"audio_url" json:"audio_url,omitempty"`
	CoverImage       *string    `db:"cover_image" json:"cover_image,omitempty"`
	Duration         *int       `db:"duration" json:"duration,omitempty"`
	Metadata         Metadata   `db:"metadata" json:"metadata"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// ScriptRef returns the script reference from the record, falling back to the
// copy kept in metadata.
func (e *Episode) ScriptRef() string {
	if e.ScriptURL != nil && *e.ScriptURL != "" {
		return *e.ScriptURL
	}
	return e.Metadata.ScriptURL
}

// HasAudio reports whether the episode references an audio artifact.
func (e *Episode) HasAudio() bool {
	return e.AudioURL != nil && *e.AudioURL != ""
}

// ConsistencyError returns a non-nil error when the status claims an artifact
// the record does not reference.
func (e *Episode) ConsistencyError() error {
	switch e.Status {
	case StatusCompleted, StatusPublished:
		if !e.HasAudio() {
			return fmt.Errorf("episode %s is %s but has no audio_url", e.ID, e.Status)
		}
	case StatusScriptReady:
		if e.ScriptRef() == "" {
			return fmt.Errorf("episode %s is %s but has no script reference", e.ID, e.Status)
		}
	}
	return nil
}
