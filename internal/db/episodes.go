package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"podcast-pipeline/internal/models"
)

const episodeColumns = `id, podcast_id, status, title, description, content_start_date, content_end_date,
	script_url, audio_url, cover_image, duration, metadata, created_at, updated_at, published_at`

func (s *Store) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	episode := &models.Episode{}
	err := s.DB.GetContext(ctx, episode, "SELECT "+episodeColumns+" FROM episodes WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode %s: %w", id, err)
	}
	return episode, nil
}

// SaveEpisodeState writes the pipeline-owned fields of an episode.
func (s *Store) SaveEpisodeState(ctx context.Context, ep *models.Episode) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE episodes
		SET status = $1, script_url = $2, audio_url = $3, cover_image = $4, duration = $5, metadata = $6, updated_at = NOW()
		WHERE id = $7`,
		ep.Status, ep.ScriptURL, ep.AudioURL, ep.CoverImage, ep.Duration, ep.Metadata, ep.ID)
	if err != nil {
		return fmt.Errorf("failed to update episode %s: %w", ep.ID, err)
	}
	return expectRow(res, "episode "+ep.ID)
}

// RecordAudioCompletion stores what the audio worker reported when its own
// write has not landed yet.
func (s *Store) RecordAudioCompletion(ctx context.Context, id, audioURL string, duration *int, meta models.Metadata) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE episodes
		SET audio_url = $1, duration = $2, status = $3, metadata = $4, updated_at = NOW()
		WHERE id = $5`,
		audioURL, duration, models.StatusCompleted, meta, id)
	if err != nil {
		return fmt.Errorf("failed to record audio completion for %s: %w", id, err)
	}
	return expectRow(res, "episode "+id)
}

// ListFailedEpisodes returns failed episodes that have been retried fewer
// than maxRetries times, oldest first. The retry filter runs before LIMIT so
// exhausted episodes can't crowd eligible ones out of the batch.
func (s *Store) ListFailedEpisodes(ctx context.Context, maxRetries, limit int) ([]models.Episode, error) {
	episodes := []models.Episode{}
	err := s.DB.SelectContext(ctx, &episodes, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE status = $1
		  AND COALESCE((NULLIF(metadata, '')::jsonb->>'retry_count')::int, 0) < $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		models.StatusFailed, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed episodes: %w", err)
	}
	return episodes, nil
}

// ListEpisodeStatuses returns a podcast's episodes, newest first. It always
// reads the table so pollers see writes from workers immediately.
func (s *Store) ListEpisodeStatuses(ctx context.Context, podcastID string) ([]models.Episode, error) {
	episodes := []models.Episode{}
	err := s.DB.SelectContext(ctx, &episodes,
		"SELECT "+episodeColumns+" FROM episodes WHERE podcast_id = $1 ORDER BY created_at DESC",
		podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes for podcast %s: %w", podcastID, err)
	}
	return episodes, nil
}

// ListPublishedEpisodes returns the episodes that belong in the public feed.
func (s *Store) ListPublishedEpisodes(ctx context.Context, podcastID string) ([]models.Episode, error) {
	episodes := []models.Episode{}
	err := s.DB.SelectContext(ctx, &episodes,
		"SELECT "+episodeColumns+" FROM episodes WHERE podcast_id = $1 AND status = $2 ORDER BY published_at DESC",
		podcastID, models.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list published episodes for podcast %s: %w", podcastID, err)
	}
	return episodes, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
