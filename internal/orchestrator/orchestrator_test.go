package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/dispatch"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/pipeline"
	"podcast-pipeline/internal/storage"
)

const (
	bucket = "bucket"
	prefix = "podcasts/p1/e1/"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	episodes map[string]models.Episode
	saves    []models.Episode
	saveErr  error
}

func newFakeStore(eps ...models.Episode) *fakeStore {
	s := &fakeStore{episodes: map[string]models.Episode{}}
	for _, ep := range eps {
		s.episodes[ep.ID] = ep
	}
	return s
}

func (s *fakeStore) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	ep, ok := s.episodes[id]
	if !ok {
		return nil, fmt.Errorf("episode %s: %w", id, db.ErrNotFound)
	}
	return &ep, nil
}

func (s *fakeStore) GetPodcast(ctx context.Context, id string) (*models.Podcast, error) {
	return &models.Podcast{ID: id, Name: "Morning Brief"}, nil
}

func (s *fakeStore) GetPodcastConfig(ctx context.Context, podcastID string) (*models.PodcastConfig, error) {
	return &models.PodcastConfig{ID: "c1", PodcastID: podcastID, Language: "hebrew", SpeakerRoles: []string{"host", "analyst"}}, nil
}

func (s *fakeStore) SaveEpisodeState(ctx context.Context, ep *models.Episode) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, *ep)
	s.episodes[ep.ID] = *ep
	return nil
}

// fakeArtifacts is an in-memory object store keyed like the real bucket.
type fakeArtifacts struct {
	keys          map[string]bool
	failOn        map[string]bool
	listErr       error
	deleteCalls   int
	deletedByCall [][]string
}

func newFakeArtifacts(names ...string) *fakeArtifacts {
	a := &fakeArtifacts{keys: map[string]bool{}, failOn: map[string]bool{}}
	for _, n := range names {
		a.keys[prefix+n] = true
	}
	return a
}

func (a *fakeArtifacts) Bucket() string { return bucket }

func (a *fakeArtifacts) Prefix(podcastID, episodeID string) string {
	return fmt.Sprintf("podcasts/%s/%s/", podcastID, episodeID)
}

func (a *fakeArtifacts) List(ctx context.Context, podcastID, episodeID string) ([]storage.Artifact, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	var out []storage.Artifact
	for k := range a.keys {
		if strings.HasPrefix(k, a.Prefix(podcastID, episodeID)) {
			name := path.Base(k)
			out = append(out, storage.Artifact{Key: k, Name: name, Category: storage.Categorize(name)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (a *fakeArtifacts) DeleteByCategory(ctx context.Context, podcastID, episodeID string, categories ...storage.Category) storage.DeleteReport {
	return a.deleteMatching(ctx, podcastID, episodeID, func(c storage.Category) bool {
		for _, want := range categories {
			if c == want {
				return true
			}
		}
		return false
	})
}

func (a *fakeArtifacts) DeleteAll(ctx context.Context, podcastID, episodeID string) storage.DeleteReport {
	return a.deleteMatching(ctx, podcastID, episodeID, func(storage.Category) bool { return true })
}

func (a *fakeArtifacts) deleteMatching(ctx context.Context, podcastID, episodeID string, match func(storage.Category) bool) storage.DeleteReport {
	a.deleteCalls++
	var report storage.DeleteReport
	var deleted []string
	list, _ := a.List(ctx, podcastID, episodeID)
	for _, art := range list {
		if !match(art.Category) {
			continue
		}
		if a.failOn[art.Name] {
			report.Errors = append(report.Errors, storage.FileError{Key: art.Key, Err: errors.New("access denied")})
			continue
		}
		delete(a.keys, art.Key)
		deleted = append(deleted, art.Name)
		report.Deleted++
	}
	a.deletedByCall = append(a.deletedByCall, deleted)
	return report
}

func (a *fakeArtifacts) names() []string {
	var out []string
	for k := range a.keys {
		out = append(out, path.Base(k))
	}
	sort.Strings(out)
	return out
}

type spyDispatcher struct {
	targets []dispatch.Target
	err     error
}

func (d *spyDispatcher) Dispatch(ctx context.Context, t dispatch.Target) error {
	d.targets = append(d.targets, t)
	return d.err
}

func strPtr(s string) *string { return &s }

func publishedEpisode() models.Episode {
	start := time.Date(2026, 2, 22, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	duration := 1260
	return models.Episode{
		ID:               "e1",
		PodcastID:        "p1",
		Status:           models.StatusPublished,
		ContentStartDate: &start,
		ContentEndDate:   &end,
		ScriptURL:        strPtr("s3://bucket/podcasts/p1/e1/script.txt"),
		AudioURL:         strPtr("s3://bucket/podcasts/p1/e1/audio.mp3"),
		CoverImage:       strPtr("s3://bucket/podcasts/p1/e1/cover.png"),
		Duration:         &duration,
		Metadata: models.Metadata{
			TelegramDataURL: "s3://bucket/podcasts/p1/e1/telegram_data.json",
		},
	}
}

func newOrchestrator(store *fakeStore, arts *fakeArtifacts, d *spyDispatcher) *Orchestrator {
	return New(store, arts, d).WithClock(func() time.Time { return fixedNow })
}

func TestAudioOnlyDeletesOnlyAudio(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("telegram_data.json", "script.txt", "audio.mp3", "cover.png", "segment.wav")
	d := &spyDispatcher{}

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, dispatch.StageAudioSynthesis, res.Stage)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Equal(t, []string{"cover.png", "script.txt", "telegram_data.json"}, arts.names())

	require.Len(t, d.targets, 1)
	target, ok := d.targets[0].(dispatch.AudioSynthesis)
	require.True(t, ok)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/script.txt", target.Payload.ScriptURL)
	assert.Equal(t, "he-IL", target.Payload.Config.Language)

	saved := store.episodes["e1"]
	assert.Equal(t, models.StatusPending, saved.Status)
	assert.Nil(t, saved.AudioURL)
	assert.Nil(t, saved.Duration)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/script.txt", *saved.ScriptURL)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/cover.png", *saved.CoverImage)
	assert.Equal(t, "audio-only", saved.Metadata.RegenerationMode)
	assert.Equal(t, fixedNow, *saved.Metadata.ProcessingStartedAt)
	assert.NoError(t, saved.ConsistencyError())
}

func TestAudioOnlyWithoutScriptIsRejectedBeforeAnySideEffect(t *testing.T) {
	ep := publishedEpisode()
	ep.Status = models.StatusContentCollected
	ep.ScriptURL = nil
	ep.AudioURL = nil
	store := newFakeStore(ep)
	arts := newFakeArtifacts("telegram_data.json", "audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
	assert.Contains(t, pipeline.HintOf(err), "Script + Audio")
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, d.targets)
	assert.Empty(t, store.saves)
}

func TestAudioOnlyScriptReadyWithoutScriptIsDataIntegrity(t *testing.T) {
	ep := publishedEpisode()
	ep.Status = models.StatusScriptReady
	ep.ScriptURL = nil
	store := newFakeStore(ep)
	arts := newFakeArtifacts("audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindDataIntegrity, pipeline.KindOf(err))
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, d.targets)
}

func TestAudioOnlyRecoversScriptFromMetadata(t *testing.T) {
	ep := publishedEpisode()
	ep.ScriptURL = nil
	ep.Metadata.ScriptURL = "s3://bucket/podcasts/p1/e1/script.txt"
	store := newFakeStore(ep)
	arts := newFakeArtifacts("script.txt", "audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})
	require.NoError(t, err)

	target := d.targets[0].(dispatch.AudioSynthesis)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/script.txt", target.Payload.ScriptURL)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/script.txt", store.episodes["e1"].Metadata.ScriptURL)
}

func TestAudioOnlyRejectsScriptDeletedFromBucket(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, d.targets)
}

func TestAudioOnlyTwiceDispatchesTwice(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("script.txt", "audio.mp3")
	d := &spyDispatcher{}
	o := newOrchestrator(store, arts, d)
	req := Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly}

	first, err := o.Regenerate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.DeletedCount)
	assert.Equal(t, models.StatusPending, store.episodes["e1"].Status)

	second, err := o.Regenerate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Zero(t, second.DeletedCount)

	assert.Len(t, d.targets, 2)
	assert.Equal(t, []string{"script.txt"}, arts.names())
}

func TestFullDeletesEverythingRegardlessOfStatus(t *testing.T) {
	for _, status := range []models.Status{models.StatusPending, models.StatusFailed, models.StatusPublished} {
		t.Run(string(status), func(t *testing.T) {
			ep := publishedEpisode()
			ep.Status = status
			store := newFakeStore(ep)
			arts := newFakeArtifacts("telegram_data.json", "script.txt", "audio.mp3", "cover.png", "notes.txt")
			d := &spyDispatcher{}

			res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeFull})
			require.NoError(t, err)

			assert.Equal(t, 5, res.DeletedCount)
			assert.Empty(t, arts.names())
			require.Len(t, d.targets, 1)
			target := d.targets[0].(dispatch.ContentFetch)
			assert.Equal(t, "2026-02-22", target.Payload.StartDate)

			saved := store.episodes["e1"]
			assert.Equal(t, models.StatusPending, saved.Status)
			assert.Nil(t, saved.ScriptURL)
			assert.Nil(t, saved.AudioURL)
			assert.Nil(t, saved.CoverImage)
			assert.Empty(t, saved.Metadata.TelegramDataURL)
		})
	}
}

func TestFullRequiresDateRange(t *testing.T) {
	ep := publishedEpisode()
	ep.ContentEndDate = nil
	store := newFakeStore(ep)
	arts := newFakeArtifacts("audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeFull})

	assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
	assert.Zero(t, arts.deleteCalls)
}

func TestScriptAudioUsesRecordedContent(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("telegram_data.json", "script.txt", "audio.mp3", "cover.png")
	d := &spyDispatcher{}

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeScriptAudio})
	require.NoError(t, err)

	assert.Equal(t, dispatch.StageScriptGeneration, res.Stage)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Equal(t, []string{"cover.png", "telegram_data.json"}, arts.names())

	target := d.targets[0].(dispatch.ScriptGeneration)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/telegram_data.json", target.Payload.TelegramDataURL)

	saved := store.episodes["e1"]
	assert.Nil(t, saved.ScriptURL)
	assert.Empty(t, saved.Metadata.ScriptURL)
}

func TestScriptAudioFallsBackToListedContent(t *testing.T) {
	ep := publishedEpisode()
	ep.Metadata.TelegramDataURL = "s3://bucket/podcasts/p1/e1/gone.json"
	store := newFakeStore(ep)
	arts := newFakeArtifacts("content_2026-03-01.json", "script.txt")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeScriptAudio})
	require.NoError(t, err)

	target := d.targets[0].(dispatch.ScriptGeneration)
	assert.Equal(t, "s3://bucket/podcasts/p1/e1/content_2026-03-01.json", target.Payload.TelegramDataURL)
	assert.Equal(t, target.Payload.TelegramDataURL, store.episodes["e1"].Metadata.TelegramDataURL)
}

func TestScriptAudioWithoutContentSuggestsFull(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("script.txt", "audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeScriptAudio})

	assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
	assert.Equal(t, "use Full Regeneration instead", pipeline.HintOf(err))
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, d.targets)
}

func TestPartialDeletionIsAWarning(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("script.txt", "audio.mp3", "audio_part2.mp3")
	arts.failOn["audio_part2.mp3"] = true
	d := &spyDispatcher{}

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DeletedCount)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, pipeline.KindPartialArtifactDeletion, res.Warnings[0].Kind)
	assert.Len(t, d.targets, 1)
}

func TestDispatchFailureMarksEpisodeFailed(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("script.txt", "audio.mp3")
	d := &spyDispatcher{err: errors.New("audio worker returned 503")}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindDispatchFailed, pipeline.KindOf(err))
	require.Len(t, store.saves, 2)
	assert.Equal(t, models.StatusPending, store.saves[0].Status)

	final := store.saves[1]
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Contains(t, final.Metadata.Error, "audio worker returned 503")
	assert.Equal(t, fixedNow, *final.Metadata.FailedAt)
}

func TestRegenerateClearsPreviousFailure(t *testing.T) {
	ep := publishedEpisode()
	ep.Status = models.StatusFailed
	ep.Metadata.RecordFailure("boom", fixedNow.Add(-time.Hour))
	ep.Metadata.RetryCount = 2
	store := newFakeStore(ep)
	arts := newFakeArtifacts("script.txt")

	_, err := newOrchestrator(store, arts, &spyDispatcher{}).Regenerate(context.Background(),
		Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly, Retry: true})
	require.NoError(t, err)

	saved := store.episodes["e1"]
	assert.Empty(t, saved.Metadata.Error)
	assert.Nil(t, saved.Metadata.FailedAt)
	assert.Equal(t, 3, saved.Metadata.RetryCount)
}

func TestOperatorRequestResetsRetryCount(t *testing.T) {
	ep := publishedEpisode()
	ep.Metadata.RetryCount = 2
	store := newFakeStore(ep)

	_, err := newOrchestrator(store, newFakeArtifacts("script.txt"), &spyDispatcher{}).Regenerate(context.Background(),
		Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})
	require.NoError(t, err)
	assert.Zero(t, store.episodes["e1"].Metadata.RetryCount)
}

func TestRegenerateUnknownEpisode(t *testing.T) {
	_, err := newOrchestrator(newFakeStore(), newFakeArtifacts(), &spyDispatcher{}).Regenerate(context.Background(),
		Request{EpisodeID: "nope", Mode: pipeline.ModeFull})
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRegenerateListFailureStopsBeforeMutation(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("audio.mp3")
	arts.listErr = errors.New("throttled")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeFull})

	assert.Equal(t, pipeline.KindInternal, pipeline.KindOf(err))
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, store.saves)
	assert.Empty(t, d.targets)
}

func TestSelectRetryMode(t *testing.T) {
	ep := publishedEpisode()
	assert.Equal(t, pipeline.ModeAudioOnly, SelectRetryMode(&ep))

	ep.ScriptURL = nil
	assert.Equal(t, pipeline.ModeScriptAudio, SelectRetryMode(&ep))

	ep.Metadata.TelegramDataURL = ""
	assert.Equal(t, pipeline.ModeFull, SelectRetryMode(&ep))
}

func TestStateWriteFailureStopsBeforeDispatch(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	store.saveErr = errors.New("connection reset")
	arts := newFakeArtifacts("script.txt", "audio.mp3")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindInternal, pipeline.KindOf(err))
	assert.Equal(t, [][]string{{"audio.mp3"}}, arts.deletedByCall)
	assert.Empty(t, d.targets)
}

func failedEpisode() models.Episode {
	ep := publishedEpisode()
	ep.Status = models.StatusFailed
	ep.AudioURL = nil
	ep.Duration = nil
	ep.Metadata.RecordFailure("audio worker timed out", fixedNow.Add(-time.Hour))
	ep.Metadata.RetryCount = 1
	return ep
}

func TestRetryFallsBackWhenScriptIsGone(t *testing.T) {
	ep := failedEpisode()
	store := newFakeStore(ep)
	arts := newFakeArtifacts("telegram_data.json")
	d := &spyDispatcher{}

	mode := SelectRetryMode(&ep)
	require.Equal(t, pipeline.ModeAudioOnly, mode)

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(),
		Request{EpisodeID: "e1", Mode: mode, Retry: true})
	require.NoError(t, err)

	assert.Equal(t, pipeline.ModeScriptAudio, res.Mode)
	require.Len(t, d.targets, 1)
	assert.Equal(t, dispatch.StageScriptGeneration, d.targets[0].Stage())
	assert.Equal(t, []string{"telegram_data.json"}, arts.names())

	saved := store.episodes["e1"]
	assert.Equal(t, models.StatusPending, saved.Status)
	assert.Equal(t, 2, saved.Metadata.RetryCount)
	assert.Equal(t, string(pipeline.ModeScriptAudio), saved.Metadata.RegenerationMode)
}

func TestRetryFallsBackToFullWhenContentIsGone(t *testing.T) {
	ep := failedEpisode()
	store := newFakeStore(ep)
	arts := newFakeArtifacts("cover.png")
	d := &spyDispatcher{}

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(),
		Request{EpisodeID: "e1", Mode: SelectRetryMode(&ep), Retry: true})
	require.NoError(t, err)

	assert.Equal(t, pipeline.ModeFull, res.Mode)
	require.Len(t, d.targets, 1)
	assert.Equal(t, dispatch.StageContentFetch, d.targets[0].Stage())
	assert.Empty(t, arts.names())
}

func TestRetryWithNothingToStartFromCountsTheAttempt(t *testing.T) {
	ep := failedEpisode()
	ep.ContentStartDate = nil
	ep.ContentEndDate = nil
	store := newFakeStore(ep)
	arts := newFakeArtifacts()
	d := &spyDispatcher{}
	o := newOrchestrator(store, arts, d)

	for sweep := 1; sweep <= 3; sweep++ {
		current := store.episodes["e1"]
		_, err := o.Regenerate(context.Background(),
			Request{EpisodeID: "e1", Mode: SelectRetryMode(&current), Retry: true})

		assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
		saved := store.episodes["e1"]
		assert.Equal(t, models.StatusFailed, saved.Status)
		assert.Equal(t, 1+sweep, saved.Metadata.RetryCount)
		assert.Contains(t, saved.Metadata.Error, "no content date range")
	}
	assert.Zero(t, arts.deleteCalls)
	assert.Empty(t, d.targets)
}

func TestOperatorRequestDoesNotFallBack(t *testing.T) {
	store := newFakeStore(failedEpisode())
	arts := newFakeArtifacts("telegram_data.json")
	d := &spyDispatcher{}

	_, err := newOrchestrator(store, arts, d).Regenerate(context.Background(),
		Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindPreconditionFailed, pipeline.KindOf(err))
	assert.Empty(t, store.saves)
	assert.Empty(t, d.targets)
}

func TestDispatchFailureKeepsDeletionWarnings(t *testing.T) {
	store := newFakeStore(publishedEpisode())
	arts := newFakeArtifacts("script.txt", "audio.mp3", "audio_part2.mp3")
	arts.failOn["audio_part2.mp3"] = true
	d := &spyDispatcher{err: errors.New("audio worker returned 503")}

	res, err := newOrchestrator(store, arts, d).Regenerate(context.Background(), Request{EpisodeID: "e1", Mode: pipeline.ModeAudioOnly})

	assert.Equal(t, pipeline.KindDispatchFailed, pipeline.KindOf(err))
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.DeletedCount)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, pipeline.KindPartialArtifactDeletion, res.Warnings[0].Kind)
}
