package models

import (
	"time"

	"github.com/lib/pq"
)

// Podcast is the owner of a series of generated episodes.
type Podcast struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerEmail  string    `db:"owner_email" json:"owner_email"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PodcastConfig holds the generation parameters of a podcast. The pipeline
// only ever reads it.
type PodcastConfig struct {
	ID              string         `db:"id" json:"id"`
	PodcastID       string         `db:"podcast_id" json:"podcast_id"`
	Language        string         `db:"language" json:"language"`
	SpeakerRoles    pq.StringArray `db:"speaker_roles" json:"speaker_roles"`
	CreativityLevel float64        `db:"creativity_level" json:"creativity_level"`
	Style           string         `db:"conversation_style" json:"conversation_style"`
	ContentSource   string         `db:"content_source" json:"content_source"`
	TelegramChannel string         `db:"telegram_channel" json:"telegram_channel"`
}
