package db_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/test"
)

var episodeCols = []string{
	"id", "podcast_id", "status", "title", "description", "content_start_date", "content_end_date",
	"script_url", "audio_url", "cover_image", "duration", "metadata", "created_at", "updated_at", "published_at",
}

func episodeRow(rows *sqlmock.Rows, id, status string, scriptURL, audioURL any, metadata string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "p1", status, nil, nil, now, now, scriptURL, audioURL, nil, nil, metadata, now, now, nil)
}

// jsonArg matches a metadata argument containing the given key/value pairs.
type jsonArg map[string]any

func (j jsonArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(s), &got); err != nil {
		return false
	}
	for k, want := range j {
		if want == nil {
			if _, present := got[k]; present {
				return false
			}
			continue
		}
		if got[k] != want {
			return false
		}
	}
	return true
}

func TestGetEpisode(t *testing.T) {
	store, mock := test.NewMockStore(t)

	rows := episodeRow(sqlmock.NewRows(episodeCols), "e1", "script_ready", "s3://bucket/podcasts/p1/e1/script.txt", nil,
		`{"telegram_data_url":"s3://bucket/podcasts/p1/e1/telegram_data.json","legacy":"x"}`)
	mock.ExpectQuery(`SELECT .+ FROM episodes WHERE id = \$1`).WithArgs("e1").WillReturnRows(rows)

	ep, err := store.GetEpisode(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScriptReady, ep.Status)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/script.txt", *ep.ScriptURL)
	assert.Nil(t, ep.AudioURL)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/telegram_data.json", ep.Metadata.TelegramDataURL)
	assert.Contains(t, ep.Metadata.Extra, "legacy")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEpisodeNotFound(t *testing.T) {
	store, mock := test.NewMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM episodes WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.GetEpisode(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEpisodeState(t *testing.T) {
	store, mock := test.NewMockStore(t)

	script := "s3://bucket/podcasts/p1/e1/script.txt"
	ep := &models.Episode{
		ID:        "e1",
		Status:    models.StatusPending,
		ScriptURL: &script,
		Metadata:  models.Metadata{ScriptURL: script, RegenerationMode: "audio-only"},
	}

	mock.ExpectExec(`UPDATE episodes\s+SET status = \$1, script_url = \$2, audio_url = \$3, cover_image = \$4, duration = \$5, metadata = \$6, updated_at = NOW\(\)\s+WHERE id = \$7`).
		WithArgs("pending", script, nil, nil, nil, jsonArg{"regeneration_mode": "audio-only", "error": nil}, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveEpisodeState(context.Background(), ep))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEpisodeStateMissingRow(t *testing.T) {
	store, mock := test.NewMockStore(t)
	mock.ExpectExec(`UPDATE episodes`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SaveEpisodeState(context.Background(), &models.Episode{ID: "gone", Status: models.StatusPending})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRecordAudioCompletion(t *testing.T) {
	store, mock := test.NewMockStore(t)
	duration := 1260

	mock.ExpectExec(`UPDATE episodes\s+SET audio_url = \$1, duration = \$2, status = \$3, metadata = \$4`).
		WithArgs("s3://bucket/podcasts/p1/e1/audio.mp3", int64(duration), "completed", jsonArg{"audio_duration": float64(duration)}, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordAudioCompletion(context.Background(), "e1", "s3://bucket/podcasts/p1/e1/audio.mp3", &duration,
		models.Metadata{AudioDuration: duration})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFailedEpisodesFiltersRetriesBeforeLimit(t *testing.T) {
	store, mock := test.NewMockStore(t)

	rows := sqlmock.NewRows(episodeCols)
	episodeRow(rows, "e1", "failed", nil, nil, `{"retry_count":0}`)
	episodeRow(rows, "e3", "failed", nil, nil, `{}`)
	mock.ExpectQuery(`SELECT .+ FROM episodes WHERE status = \$1 ` +
		`AND COALESCE\(\(NULLIF\(metadata, ''\)::jsonb->>'retry_count'\)::int, 0\) < \$2 ` +
		`ORDER BY updated_at ASC LIMIT \$3`).
		WithArgs("failed", 3, 2).WillReturnRows(rows)

	episodes, err := store.ListFailedEpisodes(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, "e1", episodes[0].ID)
	assert.Equal(t, "e3", episodes[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFailedEpisodesEmpty(t *testing.T) {
	store, mock := test.NewMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM episodes WHERE status = \$1`).
		WithArgs("failed", 3, 50).WillReturnRows(sqlmock.NewRows(episodeCols))

	episodes, err := store.ListFailedEpisodes(context.Background(), 3, 50)
	require.NoError(t, err)
	assert.Empty(t, episodes)
}

func TestGetPodcastConfig(t *testing.T) {
	store, mock := test.NewMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "podcast_id", "language", "speaker_roles", "creativity_level", "conversation_style", "content_source", "telegram_channel"}).
		AddRow("c1", "p1", "hebrew", "{host,analyst}", 0.7, "casual", "telegram", "@news")
	mock.ExpectQuery(`SELECT .+ FROM podcast_configs\s+WHERE podcast_id = \$1 AND is_active`).WithArgs("p1").WillReturnRows(rows)

	cfg, err := store.GetPodcastConfig(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "hebrew", cfg.Language)
	assert.Equal(t, []string{"host", "analyst"}, []string(cfg.SpeakerRoles))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubscriberEmails(t *testing.T) {
	store, mock := test.NewMockStore(t)

	rows := sqlmock.NewRows([]string{"email"}).AddRow("a@example.com").AddRow("b@example.com")
	mock.ExpectQuery(`SELECT email FROM podcast_subscribers WHERE podcast_id = \$1`).WithArgs("p1").WillReturnRows(rows)

	emails, err := store.ListSubscriberEmails(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, emails)
}

func TestMigrationDefinesEpisodeColumns(t *testing.T) {
	schema, err := os.ReadFile(filepath.Join(test.ProjectRoot(), "migrations", "001_init.sql"))
	require.NoError(t, err)

	body := string(schema)
	start := strings.Index(body, "CREATE TABLE IF NOT EXISTS episodes")
	require.NotEqual(t, -1, start)
	episodesTable := body[start:]
	episodesTable = episodesTable[:strings.Index(episodesTable, ");")]

	for _, col := range episodeCols {
		assert.Contains(t, episodesTable, "\n    "+col+" ", col)
	}
}
