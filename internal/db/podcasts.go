package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"podcast-pipeline/internal/models"
)

func (s *Store) GetPodcast(ctx context.Context, id string) (*models.Podcast, error) {
	podcast := &models.Podcast{}
	err := s.DB.GetContext(ctx, podcast,
		"SELECT id, name, description, owner_email, created_at FROM podcasts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("podcast %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast %s: %w", id, err)
	}
	return podcast, nil
}

// GetPodcastConfig returns the active generation config of a podcast.
func (s *Store) GetPodcastConfig(ctx context.Context, podcastID string) (*models.PodcastConfig, error) {
	cfg := &models.PodcastConfig{}
	err := s.DB.GetContext(ctx, cfg, `
		SELECT id, podcast_id, language, speaker_roles, creativity_level, conversation_style,
			content_source, telegram_channel
		FROM podcast_configs
		WHERE podcast_id = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1`, podcastID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config for podcast %s: %w", podcastID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config for podcast %s: %w", podcastID, err)
	}
	return cfg, nil
}

// ListSubscriberEmails returns the addresses to notify about new episodes.
func (s *Store) ListSubscriberEmails(ctx context.Context, podcastID string) ([]string, error) {
	var emails []string
	err := s.DB.SelectContext(ctx, &emails,
		"SELECT email FROM podcast_subscribers WHERE podcast_id = $1 AND unsubscribed_at IS NULL ORDER BY email",
		podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers for podcast %s: %w", podcastID, err)
	}
	return emails, nil
}
